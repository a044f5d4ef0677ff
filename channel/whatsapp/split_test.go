package whatsapp

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSplitMessageShortTextUntouched(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"Bonjour !"}, SplitMessage("Bonjour !", MaxMessageLength))
	require.Nil(t, SplitMessage("   ", MaxMessageLength))
}

func TestSplitMessageLongReply(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; b.Len() < 9000; i++ {
		b.WriteString("Pour effectuer un retrait, composez le code USSD de votre opérateur. ")
		if i%7 == 6 {
			b.WriteString("\n\n")
		}
	}
	text := strings.TrimSpace(b.String())

	chunks := SplitMessage(text, MaxMessageLength)
	require.GreaterOrEqual(t, len(chunks), 3)
	for _, c := range chunks[:len(chunks)-1] {
		n := utf8.RuneCountInString(c)
		require.LessOrEqual(t, n, MaxMessageLength)
		require.Greater(t, n, MaxMessageLength/4)
	}
	require.LessOrEqual(t, utf8.RuneCountInString(chunks[len(chunks)-1]), MaxMessageLength)
	require.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestSplitMessageBreakPreference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		first string
	}{
		{
			name:  "paragraph",
			text:  "aaaaaaa\n\nbb. cc\ndddddd",
			first: "aaaaaaa",
		},
		{
			name:  "line",
			text:  "aaaaaa. b\ncccccccccc",
			first: "aaaaaa. b",
		},
		{
			name:  "sentence",
			text:  "aaaaaaa. bbbbbbbbbb",
			first: "aaaaaaa.",
		},
		{
			name:  "early break ignored",
			text:  "aa\n\nbbbbbbbbbbbbbbbbbb",
			first: "aa\n\nbbbbbb",
		},
		{
			name:  "hard cut",
			text:  strings.Repeat("é", 25),
			first: strings.Repeat("é", 10),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := SplitMessage(tt.text, 10)
			require.NotEmpty(t, chunks)
			require.Equal(t, tt.first, chunks[0])
			for _, c := range chunks {
				require.LessOrEqual(t, utf8.RuneCountInString(c), 10)
			}
		})
	}
}
