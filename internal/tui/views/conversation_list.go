package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui/model"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// ConversationList is a table of conversations with unread badges.
type ConversationList struct {
	*tview.Table
	theme    *ui.Theme
	title    string
	rows     []model.Row
	onSelect func(patientID int64)
}

// NewConversationList creates a conversation table titled title.
func NewConversationList(theme *ui.Theme, title string) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{Table: table, theme: theme, title: title}
	table.SetSelectedFunc(func(row, _ int) {
		if id := cl.patientAt(row); id != 0 && cl.onSelect != nil {
			cl.onSelect(id)
		}
	})
	cl.Update(nil, nil, "", 0)
	return cl
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return cl.title }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
	}
}

// SetLabel renames the list; the title shows it with the row count.
func (cl *ConversationList) SetLabel(title string) {
	cl.title = title
}

// SetOnSelect sets the Enter callback.
func (cl *ConversationList) SetOnSelect(fn func(patientID int64)) {
	cl.onSelect = fn
}

// Update redraws the table, keeping the cursor on the same patient when
// it is still listed.
func (cl *ConversationList) Update(rows []model.Row, inboxes []store.Inbox, filter string, total int) {
	keep := cl.SelectedPatient()
	cl.rows = rows
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" PATIENT", 2},
		{" LAST MESSAGE", 3},
		{" INBOX", 1},
		{" WHEN", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cursor := 1
	for i, r := range rows {
		c := r.Conversation
		row := i + 1
		if c.Patient.ID == keep {
			cursor = row
		}

		unread := ""
		if c.Unread > 0 {
			unread = fmt.Sprintf(" %d", c.Unread)
		}
		last, via := "", ""
		if c.LastMessage != nil {
			last = preview(c.LastMessage.Body, 60)
			if c.LastMessage.Direction == store.Outbound {
				last = "you: " + last
			}
			via = inboxName(inboxes, c.LastMessage.InboxAddress)
		}

		cl.SetCell(row, 0, tview.NewTableCell(unread).SetTextColor(cl.theme.BadgeColor).SetAttributes(tcell.AttrBold))
		cl.SetCell(row, 1, tview.NewTableCell(" "+highlight(patientName(c.Patient), r.Matched, cl.theme)).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+clean(last)).SetExpansion(3).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(" "+clean(via)).SetExpansion(1).SetTextColor(cl.theme.MutedColor))
		cl.SetCell(row, 4, tview.NewTableCell(formatTimestamp(c.LastActivity)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if filter != "" {
		cl.SetTitle(fmt.Sprintf(" %s (%d/%d) /%s ", cl.title, len(rows), total, tview.Escape(filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" %s (%d) ", cl.title, len(rows)))
	}
	if len(rows) > 0 {
		cl.Select(cursor, 0)
	}
}

// SelectedPatient returns the patient under the cursor, or zero.
func (cl *ConversationList) SelectedPatient() int64 {
	row, _ := cl.GetSelection()
	return cl.patientAt(row)
}

func (cl *ConversationList) patientAt(row int) int64 {
	idx := row - 1
	if idx < 0 || idx >= len(cl.rows) {
		return 0
	}
	return cl.rows[idx].Conversation.Patient.ID
}

func patientName(p store.Patient) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Phone != "" {
		return p.Phone
	}
	return fmt.Sprintf("patient %d", p.ID)
}

// inboxName labels an inbox address; an empty address is unattributed.
func inboxName(inboxes []store.Inbox, addr string) string {
	if addr == "" {
		return "-"
	}
	for i := range inboxes {
		if inboxes[i].PhoneAddress == addr {
			return inboxes[i].Label()
		}
	}
	return addr
}

// highlight colors the runes at matched offsets.
func highlight(name string, matched []int, theme *ui.Theme) string {
	if len(matched) == 0 {
		return clean(name)
	}
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}
	var out string
	for i, r := range name {
		s := clean(string(r))
		if hit[i] {
			s = fmt.Sprintf("[%s::b]%s[-:-:-]", ui.Tag(theme.NumericKeyColor), s)
		}
		out += s
	}
	return out
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}
