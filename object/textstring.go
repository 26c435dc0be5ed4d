package object

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// replacer escapes the four bytes that need escaping inside a PDF "(...)"
// string literal: backslash, both parentheses, and carriage return.
var replacer = strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)", "\r", "\\r")

var utf16Enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

// EncodeTextString encodes s as a PDF "text string" (UTF-16BE with a BOM,
// escaped and parenthesized), the representation used for Info-dictionary
// and /Metadata-adjacent human-readable strings.
func EncodeTextString(s string) (StringLiteral, error) {
	escaped := replacer.Replace(s)
	encoded, err := utf16Enc.NewEncoder().String(escaped)
	if err != nil {
		return "", err
	}
	return StringLiteral(encoded), nil
}
