package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// Thread shows one patient's messages, oldest first. It is read-only.
type Thread struct {
	*tview.TextView
	theme *ui.Theme
	name  string
}

// NewThread creates an empty thread view.
func NewThread(theme *ui.Theme) *Thread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Messages ")
	tv.SetTitleColor(theme.TitleColor)
	return &Thread{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (t *Thread) Name() string {
	if t.name != "" {
		return t.name
	}
	return "Messages"
}

// Hints implements ui.Component.
func (t *Thread) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back to list"}}
}

// Update renders msgs for patient. A zero patient shows a placeholder.
func (t *Thread) Update(patient store.Patient, inboxes []store.Inbox, msgs []store.Message) {
	t.Clear()
	if patient.ID == 0 {
		t.name = ""
		t.SetTitle(" Messages ")
		_, _ = fmt.Fprintf(t, "\n  [%s]Select a conversation[-]", ui.Tag(t.theme.MutedColor))
		return
	}
	t.name = patientName(patient)
	t.SetTitle(fmt.Sprintf(" %s ", clean(t.name)))
	if len(msgs) == 0 {
		_, _ = fmt.Fprintf(t, "\n  [%s]No messages in this inbox[-]", ui.Tag(t.theme.MutedColor))
		return
	}

	for _, m := range msgs {
		who, color := clean(t.name), t.theme.CounterColor
		if m.Direction == store.Outbound {
			who, color = "Clinic", t.theme.TitleColor
		}
		marker := ""
		if m.Unread() {
			marker = fmt.Sprintf(" [%s]new[-]", ui.Tag(t.theme.BadgeColor))
		}
		_, _ = fmt.Fprintf(t, "[%s::b]%s[-:-:-] [::d]%s via %s · %s[-:-:-]%s\n%s\n\n",
			ui.Tag(color), who,
			formatTimestamp(m.CreatedAt), clean(inboxName(inboxes, m.InboxAddress)), m.Channel,
			marker, clean(m.Body))
	}
	t.ScrollToEnd()
}
