package guard

import (
	"strings"
	"testing"
)

func TestCheckRewritesClaims(t *testing.T) {
	t.Parallel()

	g := NewRefundGuard()
	cases := []struct {
		in      string
		flagged bool
	}{
		{in: "Bonne nouvelle : Remboursement   effectué hier soir.", flagged: true},
		{in: "Vous avez été REMBOURSÉ de 5000 FCFA.", flagged: true},
		{in: "Votre remboursement a été effectué.", flagged: true},
		{in: "J'ai ouvert le litige DSP-1001, aucun remboursement n'est effectué pour l'instant.", flagged: false},
		{in: "Bonjour ! Comment puis-je vous aider ?", flagged: false},
		{in: "", flagged: false},
	}
	for _, tc := range cases {
		out, flagged := g.Check(tc.in)
		if flagged != tc.flagged {
			t.Fatalf("Check(%q) flagged = %v, want %v (out=%q)", tc.in, flagged, tc.flagged, out)
		}
		if tc.flagged {
			lower := strings.ToLower(out)
			if strings.Contains(lower, "remboursement effectué") || strings.Contains(lower, "remboursé") {
				t.Fatalf("claim survived rewrite: %q", out)
			}
			if !strings.Contains(out, DefaultReplacement) {
				t.Fatalf("replacement missing: %q", out)
			}
		} else if out != tc.in {
			t.Fatalf("clean text was modified: %q -> %q", tc.in, out)
		}
	}
}

func TestFilterAcrossChunks(t *testing.T) {
	t.Parallel()

	g := NewRefundGuard()
	full := "Votre remboursement effectué. Merci de votre patience."
	want, _ := g.Check(full)

	f := g.NewFilter()
	chunks := []string{"Votre rembour", "sement eff", "ectué. Merci", " de votre patience."}
	var got strings.Builder
	for i, c := range chunks {
		out := f.Write(c)
		if i == 0 && out != "Votre " {
			t.Fatalf("first write released %q, want %q", out, "Votre ")
		}
		got.WriteString(out)
	}
	got.WriteString(f.Flush())

	if got.String() != want {
		t.Fatalf("streamed = %q, want %q", got.String(), want)
	}
	if !f.Flagged() || f.Hits() != 1 {
		t.Fatalf("expected one hit, got %d", f.Hits())
	}
}

func TestFilterReleasesCleanText(t *testing.T) {
	t.Parallel()

	f := NewRefundGuard().NewFilter()
	var got strings.Builder
	for _, r := range "Le statut est FAILED, je lance le litige." {
		got.WriteString(f.Write(string(r)))
	}
	got.WriteString(f.Flush())

	if got.String() != "Le statut est FAILED, je lance le litige." {
		t.Fatalf("unexpected output: %q", got.String())
	}
	if f.Flagged() {
		t.Fatal("clean text must not be flagged")
	}
}

func TestFilterHoldsOnlyPossiblePrefix(t *testing.T) {
	t.Parallel()

	f := NewRefundGuard().NewFilter()
	if out := f.Write("Merci beaucoup"); out != "Merci beaucoup" {
		t.Fatalf("expected full release, got %q", out)
	}
	if out := f.Write(" pour votre r"); out != " pour votre " {
		t.Fatalf("expected trailing r to be held, got %q", out)
	}
	if out := f.Flush(); out != "r" {
		t.Fatalf("flush = %q, want %q", out, "r")
	}
}

func TestCustomPatterns(t *testing.T) {
	t.Parallel()

	g := NewRefundGuard("argent  rendu")
	out, flagged := g.Check("Votre argent\nrendu est disponible")
	if !flagged || out != "Votre "+DefaultReplacement+" est disponible" {
		t.Fatalf("unexpected result: %q flagged=%v", out, flagged)
	}
}
