package xmlcodec

import (
	"strings"
	"unicode/utf8"
)

// validChar reports whether r may appear in an XML 1.0 document.
func validChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= utf8.MaxRune)
}

// escape writes s with markup characters replaced by entities. Characters
// XML cannot carry (control characters, invalid UTF-8) are dropped. CR is
// always written as a character reference since parsers fold literal CRs
// into LF; in attribute values tab and LF are also referenced so attribute
// value normalization cannot turn them into spaces.
func escape(b *strings.Builder, s string, attr bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\r':
			b.WriteString("&#13;")
		case '\t':
			if attr {
				b.WriteString("&#9;")
			} else {
				b.WriteByte('\t')
			}
		case '\n':
			if attr {
				b.WriteString("&#10;")
			} else {
				b.WriteByte('\n')
			}
		default:
			if validChar(r) {
				b.WriteRune(r)
			}
		}
	}
}

func escapeText(s string) string {
	var b strings.Builder
	escape(&b, s, false)
	return b.String()
}

func escapeAttr(s string) string {
	var b strings.Builder
	escape(&b, s, true)
	return b.String()
}
