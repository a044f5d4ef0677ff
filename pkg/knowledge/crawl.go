package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const maxPageBytes = 5 << 20

var assetPattern = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|svg|webp|ico|pdf|css|js|zip|mp4|mp3)$`)

// Fetcher downloads HTML pages.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		userAgent:  cfg.UserAgent,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := parsePageURL(rawURL)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	return string(body), nil
}

// Crawl fetches one page and returns it together with every same-origin page
// it links to, sorted and deduplicated.
func (f *Fetcher) Crawl(ctx context.Context, rawURL string) ([]string, error) {
	base, err := parsePageURL(rawURL)
	if err != nil {
		return nil, err
	}
	page, err := f.Fetch(ctx, base.String())
	if err != nil {
		return nil, err
	}
	links, err := ExtractLinks(base, page)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{rawURL: {}}
	for _, l := range links {
		seen[l] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

// ExtractLinks returns the normalized same-origin page links of an HTML
// document. Asset files are skipped.
func ExtractLinks(base *url.URL, page string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				if link, ok := normalizeLink(base, href); ok {
					out = append(out, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func normalizeLink(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != base.Scheme || abs.Host != base.Host {
		return "", false
	}
	if assetPattern.MatchString(abs.Path) {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return strings.TrimSuffix(abs.String(), "/"), true
}

func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
