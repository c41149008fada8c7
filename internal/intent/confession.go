package intent

import (
	"strings"

	"github.com/alekspetrov/turma/internal/comms"
)

// confessionPrefixes are compared against lower-cased, accent-folded text.
var confessionPrefixes = []string{
	"confissao:",
	"#confissao",
	"!confessar",
}

// ParseConfession matches the private confession grammar and returns the
// trimmed body. The body may be empty; length rules belong to the game.
func ParseConfession(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, prefix := range confessionPrefixes {
		if rest, ok := cutFoldedPrefix(text, prefix); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// cutFoldedPrefix compares prefix with the folded start of text and returns
// the untouched remainder of text on a match.
func cutFoldedPrefix(text, prefix string) (string, bool) {
	var folded strings.Builder
	for i, r := range text {
		if folded.Len() >= len(prefix) {
			return text[i:], folded.String() == prefix
		}
		folded.WriteString(strings.ToLower(comms.FoldAccents(string(r))))
		if !strings.HasPrefix(prefix, folded.String()) {
			return "", false
		}
	}
	return "", folded.String() == prefix
}
