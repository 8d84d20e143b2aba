package views

import (
	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// Popup is a desktop-style notification drawn as a small modal.
type Popup struct {
	*tview.Modal
}

// NewPopup builds a popup with Open and Dismiss buttons.
func NewPopup(theme *ui.Theme, title, body string, onOpen, onDismiss func()) *Popup {
	m := tview.NewModal().
		SetText(clean(title) + "\n\n" + clean(preview(body, 120))).
		AddButtons([]string{"Open", "Dismiss"}).
		SetDoneFunc(func(idx int, _ string) {
			if idx == 0 {
				onOpen()
				return
			}
			onDismiss()
		})
	m.SetBorderColor(theme.PopupBorderColor)
	m.SetBackgroundColor(theme.BgColor)
	m.SetTextColor(theme.FgColor)
	m.SetTitle(" New message ")
	m.SetTitleColor(theme.TitleColor)
	return &Popup{Modal: m}
}
