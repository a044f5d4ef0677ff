package whatsapp

import "strings"

// MaxMessageLength stays under WhatsApp's 4096 character limit.
const MaxMessageLength = 4000

var breakPoints = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(". ")}

// SplitMessage cuts text into chunks of at most limit characters. It prefers
// a paragraph break, then a line break, then a sentence end, and accepts a
// break only in the second half of the window; otherwise it cuts hard.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	remaining := []rune(text)
	if len(remaining) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(remaining) > 0 {
		if len(remaining) <= limit {
			chunks = append(chunks, string(remaining))
			break
		}

		cut := limit
		for _, sep := range breakPoints {
			if i := lastIndex(remaining[:limit], sep); i > limit/2 {
				cut = i + len(sep)
				break
			}
		}

		if chunk := strings.TrimSpace(string(remaining[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[cut:])))
	}
	return chunks
}

func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
