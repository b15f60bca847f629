package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes text before chunking: line endings become '\n', invalid
// UTF-8 and control characters are dropped, runs of spaces and tabs collapse to
// one space, and more than one blank line collapses to a single blank line.
// Newlines are kept since the chunker cuts on them.
func Preprocess(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	newlines := 0
	for _, r := range text {
		switch {
		case r == '\n':
			newlines++
			wasSpace = false
			if newlines <= 2 {
				b.WriteRune('\n')
			}
		case r == ' ' || r == '\t' || (unicode.IsSpace(r) && r != '\n'):
			if !wasSpace && newlines == 0 {
				b.WriteRune(' ')
			}
			wasSpace = true
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			wasSpace = false
			newlines = 0
		}
	}
	return strings.TrimSpace(b.String())
}
