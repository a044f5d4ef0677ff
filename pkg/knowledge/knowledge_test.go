package knowledge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const helpPage = `<!doctype html>
<html>
<head><title>Aide</title><style>body{color:red}</style></head>
<body>
<header>Solimi</header>
<nav><a href="/faq">FAQ</a></nav>
<main>
  <h1>Retrait   Mobile Money</h1>
  <p>Pour retirer de l'argent, composez le code USSD de votre opérateur et suivez les instructions.</p>
  <a href="/tarifs/#frais">Tarifs</a>
  <a href="/tarifs">Tarifs encore</a>
  <a href="https://other.example.com/page">Externe</a>
  <a href="/logo.png">Logo</a>
  <a href="/guide.PDF">Guide</a>
  <a href="mailto:support@solimi.net">Mail</a>
</main>
<script>alert("x")</script>
<footer>© Solimi</footer>
</body>
</html>`

func newSite(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCleanRemovesChromeAndCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	text, err := Clean(helpPage, 0)
	require.NoError(t, err)
	require.Contains(t, text, "Retrait Mobile Money Pour retirer")
	require.NotContains(t, text, "alert")
	require.NotContains(t, text, "color:red")
	require.NotContains(t, text, "© Solimi")
	require.NotContains(t, text, "FAQ")
	require.NotContains(t, text, "  ")
}

func TestCleanTruncates(t *testing.T) {
	t.Parallel()

	text, err := Clean("<body><p>"+strings.Repeat("é", 100)+"</p></body>", 10)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("é", 10), text)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://solimi.net/aide")
	require.NoError(t, err)
	links, err := ExtractLinks(base, helpPage)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://solimi.net/faq",
		"https://solimi.net/tarifs",
		"https://solimi.net/tarifs",
	}, links)
}

func TestCrawlDeduplicatesAndSorts(t *testing.T) {
	t.Parallel()

	srv := newSite(t, map[string]string{"/aide": helpPage})
	f := NewFetcher(Config{})

	links, err := f.Crawl(context.Background(), srv.URL+"/aide")
	require.NoError(t, err)
	require.Equal(t, []string{
		srv.URL + "/aide",
		srv.URL + "/faq",
		srv.URL + "/tarifs",
	}, links)
}

func TestCrawlRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(Config{}).Crawl(context.Background(), "ftp://solimi.net")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestFetchReportsHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := newSite(t, nil)
	_, err := NewFetcher(Config{}).Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 404")
}

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

// Embed maps text to a tiny vector so nearest-neighbour order is predictable.
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	v := []float32{0, 0}
	if strings.Contains(strings.ToLower(text), "retrait") || strings.Contains(strings.ToLower(text), "retirer") {
		v[0] = 1
	}
	if strings.Contains(strings.ToLower(text), "kyc") {
		v[1] = 1
	}
	return v, nil
}

func TestServiceIngestAndSearch(t *testing.T) {
	t.Parallel()

	kycPage := `<body><p>Le KYC exige une pièce d'identité valide et un selfie récent pour activer votre compte.</p></body>`
	srv := newSite(t, map[string]string{"/aide": helpPage, "/kyc": kycPage, "/vide": "<body><p>court</p></body>"})
	index := NewMemoryIndex()
	svc := NewService(NewFetcher(Config{}), &fakeEmbedder{}, index, Config{})

	res, err := svc.Ingest(context.Background(), srv.URL+"/aide")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/aide", res.URL)
	require.Positive(t, res.Chars)

	// re-ingesting replaces the page
	_, err = svc.Ingest(context.Background(), srv.URL+"/aide")
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), srv.URL+"/kyc")
	require.NoError(t, err)
	require.Equal(t, 2, index.Len())

	_, err = svc.Ingest(context.Background(), srv.URL+"/vide")
	require.ErrorIs(t, err, ErrContentTooShort)

	matches, err := svc.Search(context.Background(), "comment faire un retrait", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, srv.URL+"/aide", matches[0].URL)
	require.Zero(t, matches[0].Distance)
}

func TestServiceIngestBatchReportsPerURL(t *testing.T) {
	t.Parallel()

	srv := newSite(t, map[string]string{"/aide": helpPage, "/vide": "<body></body>"})
	svc := NewService(NewFetcher(Config{}), &fakeEmbedder{}, NewMemoryIndex(), Config{Concurrency: 2})

	results, err := svc.IngestBatch(context.Background(), []string{
		srv.URL + "/aide",
		srv.URL + "/vide",
		srv.URL + "/absent",
		"not a url",
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.Empty(t, results[0].Error)
	require.Equal(t, ErrContentTooShort.Error(), results[1].Error)
	require.Equal(t, "ingestion failed", results[2].Error)
	require.Equal(t, ErrInvalidURL.Error(), results[3].Error)
}

func TestServiceNotConfigured(t *testing.T) {
	t.Parallel()

	svc := NewService(NewFetcher(Config{}), nil, nil, Config{})
	require.False(t, svc.Configured())

	_, err := svc.Ingest(context.Background(), "https://solimi.net")
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.IngestBatch(context.Background(), []string{"https://solimi.net"})
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Search(context.Background(), "frais", 3)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestServiceEmbedFailure(t *testing.T) {
	t.Parallel()

	srv := newSite(t, map[string]string{"/aide": helpPage})
	svc := NewService(NewFetcher(Config{}), &fakeEmbedder{err: errors.New("quota")}, NewMemoryIndex(), Config{})

	_, err := svc.Ingest(context.Background(), srv.URL+"/aide")
	require.Error(t, err)
	_, err = svc.Search(context.Background(), "frais", 3)
	require.Error(t, err)
}

func TestVectorLiteral(t *testing.T) {
	t.Parallel()

	require.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
	require.Equal(t, "[]", vectorLiteral(nil))
}
