package tools

import (
	"fmt"
	"strings"
	"unicode"
)

type printableType interface {
	~string | ~[]byte
}

// Escape returns v with every non printable character replaced by its
// escape sequence, so wire traffic can be logged on a single line.
func Escape[T printableType](v T) string {
	var b strings.Builder
	for _, r := range string(v) {
		switch {
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}
