package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu is the one-line shortcut strip under the header.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a shortcut strip.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	return &Menu{TextView: tv, theme: theme}
}

// Update renders hints in order.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		color := m.theme.MenuKeyColor
		if h.Numeric {
			color = m.theme.NumericKeyColor
		}
		parts = append(parts, fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", Tag(color), tview.Escape(h.Key), tview.Escape(h.Description)))
	}
	_, _ = fmt.Fprint(m, " "+strings.Join(parts, "  "))
}
