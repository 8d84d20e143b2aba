package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/conversation"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// PatientInfo shows the selected patient's record and conversation stats.
type PatientInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPatientInfo creates an empty patient view.
func NewPatientInfo(theme *ui.Theme) *PatientInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Patient ")
	tv.SetTitleColor(theme.TitleColor)
	return &PatientInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (pi *PatientInfo) Name() string { return "Patient" }

// Hints implements ui.Component.
func (pi *PatientInfo) Hints() []ui.MenuHint { return nil }

// Update renders c. ok is false when no conversation is selected.
func (pi *PatientInfo) Update(c conversation.Conversation, ok bool, inboxes []store.Inbox) {
	pi.Clear()
	if !ok {
		pi.SetTitle(" Patient ")
		_, _ = fmt.Fprintf(pi, "\n  [%s]Select a conversation on the dashboard first[-]", ui.Tag(pi.theme.MutedColor))
		return
	}
	p := c.Patient
	pi.SetTitle(fmt.Sprintf(" %s ", clean(patientName(p))))

	label := ui.Tag(pi.theme.FgColor)
	value := ui.Tag(pi.theme.CounterColor)
	field := func(name, v string) {
		if v == "" {
			v = "-"
		}
		_, _ = fmt.Fprintf(pi, " [%s::b]%-18s[-:-:-] [%s]%s[-]\n", label, name+":", value, clean(v))
	}

	_, _ = fmt.Fprintln(pi)
	field("Name", p.Name)
	field("Phone", p.Phone)
	field("Email", p.Email)
	field("Preferred channel", p.PreferredChannel)
	field("Status", p.Status)
	field("Patient since", formatTimestamp(p.CreatedAt))
	field("Unread", fmt.Sprint(c.Unread))
	field("Last activity", formatTimestamp(c.LastActivity))
	if m := c.LastMessage; m != nil {
		field("Last inbox", inboxName(inboxes, m.InboxAddress))
		field("Last message", preview(m.Body, 80))
	}
}
