package views

import (
	"strings"
	"unicode/utf8"

	"github.com/rivo/tview"
)

// clean drops the codepoints tcell draws badly (skin tone modifiers,
// joiners, variation selectors) and escapes tview color tags.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if combining(r) {
			continue
		}
		b.WriteRune(r)
	}
	return tview.Escape(b.String())
}

// preview flattens a message body to one line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func combining(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
