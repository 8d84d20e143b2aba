package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/tui/keys"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// HelpSection is one titled group of shortcuts.
type HelpSection struct {
	Title string
	Hints []keys.Hint
}

// Commands available at the ':' prompt.
var Commands = []keys.Hint{
	{Key: ":inbox <name|number|position>", Description: "Switch inbox"},
	{Key: ":screen <name>", Description: "Switch screen"},
	{Key: ":notify", Description: "Ask for desktop notification permission"},
	{Key: ":resubscribe", Description: "Reconnect live updates"},
	{Key: ":pair", Description: "Pair the WhatsApp inbox"},
	{Key: ":quit", Description: "Quit"},
}

// HelpView lists key bindings and commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates the help overlay.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)
	return &HelpView{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Close"}}
}

// Update renders sections followed by the command list.
func (hv *HelpView) Update(sections []HelpSection) {
	hv.Clear()
	kc := ui.Tag(hv.theme.MenuKeyColor)
	write := func(title string, hints []keys.Hint) {
		if len(hints) == 0 {
			return
		}
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", title)
		for _, h := range hints {
			_, _ = fmt.Fprintf(hv, "  [%s]%-26s[-] %s\n", kc, tview.Escape(h.Key), tview.Escape(h.Description))
		}
	}
	for _, s := range sections {
		write(s.Title, s.Hints)
	}
	write("Commands", Commands)
	hv.ScrollToBeginning()
}
