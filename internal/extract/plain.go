package extract

import (
	"strings"
	"unicode/utf8"
)

// validUTF8 returns content as a string with invalid sequences replaced by U+FFFD.
func validUTF8(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}
