package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain passes text content through unchanged, except that invalid
// UTF-8 sequences become the replacement character so downstream rune-based
// chunking stays well defined.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s, nil
}
