package picking

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeCode canonicalizes a scanned or ERP-provided code so both sides
// of the lookup agree. Keyboard-wedge scanners under some input methods emit
// full-width digits, and trailing CR/LF or tabs are common suffixes.
func NormalizeCode(code string) string {
	code = width.Narrow.String(code)
	code = norm.NFC.String(code)

	return strings.TrimFunc(code, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}
