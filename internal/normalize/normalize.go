// Package normalize canonicalizes user supplied text before it is stored or compared.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Content returns message text in NFC form with CRLF folded to LF and
// surrounding whitespace trimmed. Inner whitespace is preserved.
func Content(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(norm.NFC.String(s))
}

// Symbol returns a reaction symbol in NFC form. Two symbols that render the
// same but were typed with different code point sequences compare equal
// after normalization.
func Symbol(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Name normalizes short single-line labels such as custom conversation names.
func Name(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Preview collapses all whitespace runs into single spaces and truncates to at
// most max runes, appending an ellipsis when something was cut.
func Preview(s string, max int) string {
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// Runes reports the length of s in runes, which is what user-facing limits count.
func Runes(s string) int {
	return utf8.RuneCountInString(s)
}
