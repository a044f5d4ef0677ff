package guard

import (
	"strings"
	"unicode"
)

// DefaultReplacement stands in for a completed-refund claim.
const DefaultReplacement = "litige ouvert, en cours d'examen"

// DefaultRefundClaims are the phrasings treated as a claim that money was
// already given back. A space in a pattern matches any run of whitespace.
var DefaultRefundClaims = []string{
	"remboursement effectué",
	"remboursement effectue",
	"remboursement a été effectué",
	"remboursement a ete effectue",
	"remboursement validé",
	"remboursement a été validé",
	"remboursement terminé",
	"vous avez été remboursé",
	"vous avez ete rembourse",
	"vous êtes remboursé",
	"refund completed",
}

// RefundGuard detects and rewrites completed-refund claims in generated text.
type RefundGuard struct {
	patterns    [][]rune
	replacement string
}

func NewRefundGuard(patterns ...string) *RefundGuard {
	if len(patterns) == 0 {
		patterns = DefaultRefundClaims
	}
	g := &RefundGuard{replacement: DefaultReplacement}
	for _, p := range patterns {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p != "" {
			g.patterns = append(g.patterns, []rune(p))
		}
	}
	return g
}

// Check rewrites every claim in text and reports whether any was found.
func (g *RefundGuard) Check(text string) (string, bool) {
	f := g.NewFilter()
	out := f.Write(text) + f.Flush()
	return out, f.Flagged()
}

func (g *RefundGuard) NewFilter() *Filter {
	return &Filter{guard: g}
}

// Filter rewrites claims across streamed chunks. It holds back only the tail
// that could still grow into a claim, so text is released as soon as it is
// known to be safe. A Filter is not safe for concurrent use.
type Filter struct {
	guard   *RefundGuard
	pending []rune
	hits    int
}

func (f *Filter) Flagged() bool {
	return f.hits > 0
}

func (f *Filter) Hits() int {
	return f.hits
}

// Write accepts the next chunk and returns the text that is safe to emit.
func (f *Filter) Write(chunk string) string {
	if chunk == "" {
		return ""
	}
	f.pending = append(f.pending, []rune(chunk)...)
	return f.drain(false)
}

// Flush releases everything still held back.
func (f *Filter) Flush() string {
	return f.drain(true)
}

type matchState int

const (
	noMatch matchState = iota
	partialMatch
	fullMatch
)

func (f *Filter) drain(final bool) string {
	var b strings.Builder
	text := f.pending
	start := 0
	hold := len(text)

	for i := 0; i < len(text); {
		end, state := f.matchAny(text, i)
		switch {
		case state == fullMatch:
			b.WriteString(string(text[start:i]))
			b.WriteString(f.guard.replacement)
			f.hits++
			i = end
			start = end
			continue
		case state == partialMatch && !final:
			hold = i
		}
		if hold != len(text) {
			break
		}
		i++
	}

	if final {
		hold = len(text)
	}
	if hold < start {
		hold = start
	}
	b.WriteString(string(text[start:hold]))
	rest := make([]rune, len(text)-hold)
	copy(rest, text[hold:])
	f.pending = rest
	return b.String()
}

// matchAny returns the best state of any pattern at position i.
func (f *Filter) matchAny(text []rune, i int) (int, matchState) {
	best := noMatch
	for _, p := range f.guard.patterns {
		end, state := matchAt(text, i, p)
		if state == fullMatch {
			return end, fullMatch
		}
		if state == partialMatch {
			best = partialMatch
		}
	}
	return 0, best
}

func matchAt(text []rune, i int, pattern []rune) (int, matchState) {
	j := i
	for k := 0; k < len(pattern); k++ {
		if j >= len(text) {
			return 0, partialMatch
		}
		if pattern[k] == ' ' {
			if !unicode.IsSpace(text[j]) {
				return 0, noMatch
			}
			for j < len(text) && unicode.IsSpace(text[j]) {
				j++
			}
			continue
		}
		if unicode.ToLower(text[j]) != pattern[k] {
			return 0, noMatch
		}
		j++
	}
	return j, fullMatch
}
