package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/live"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
	"github.com/sumithjoshi99/medconnect/internal/wa"
)

// StatusBar is the bottom line: inbox, unread badge, connection states
// and a clock.
type StatusBar struct {
	*tview.TextView
	theme    *ui.Theme
	inbox    string
	badge    badge.Badge
	live     status.State
	whatsapp status.State
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme}
}

// SetInbox sets the selected inbox label; empty means all inboxes.
func (sb *StatusBar) SetInbox(label string) { sb.inbox = label }

// SetBadge sets the unread badge.
func (sb *StatusBar) SetBadge(b badge.Badge) { sb.badge = b }

// SetLive sets the live listener state.
func (sb *StatusBar) SetLive(s status.State) { sb.live = s }

// SetWhatsApp sets the bridge state; empty hides it.
func (sb *StatusBar) SetWhatsApp(s status.State) { sb.whatsapp = s }

// Render redraws the bar with the current clock.
func (sb *StatusBar) Render(now time.Time) {
	sb.Clear()
	inbox := sb.inbox
	if inbox == "" {
		inbox = badge.GlobalLabel
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-]", clean(inbox))
	if sb.badge.Display != "" {
		line += fmt.Sprintf(" [%s::b](%s unread in %s)[-:-:-]", ui.Tag(sb.theme.BadgeColor), sb.badge.Display, clean(sb.badge.Label))
	}
	line += " | live " + sb.state(sb.live, sb.live == live.Subscribed)
	if sb.whatsapp != "" {
		line += " | whatsapp " + sb.state(sb.whatsapp, sb.whatsapp == wa.Connected)
	}
	line += " | " + now.Format("15:04")
	_, _ = fmt.Fprint(sb, line)
}

func (sb *StatusBar) state(s status.State, ok bool) string {
	if s == "" {
		s = "?"
	}
	color := sb.theme.FlashWarnColor
	if ok {
		color = sb.theme.OKColor
	}
	return fmt.Sprintf("[%s]%s[-]", ui.Tag(color), s)
}
