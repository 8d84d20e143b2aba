package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
)

// SettingsInfo is what the settings screen shows.
type SettingsInfo struct {
	Permission string
	Sound      bool
	AutoRetry  bool
	PushMode   string
	Live       status.State
	WhatsApp   status.State // empty when the bridge is disabled
	Inboxes    []store.Inbox
	Primary    int64
	ConfigPath string
}

// Settings shows engine configuration and connection state.
type Settings struct {
	*tview.TextView
	theme *ui.Theme
}

// NewSettings creates the settings screen.
func NewSettings(theme *ui.Theme) *Settings {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Settings ")
	tv.SetTitleColor(theme.TitleColor)
	return &Settings{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (s *Settings) Name() string { return "Settings" }

// Hints implements ui.Component.
func (s *Settings) Hints() []ui.MenuHint { return nil }

// Update renders info.
func (s *Settings) Update(info SettingsInfo) {
	s.Clear()
	key := ui.Tag(s.theme.MenuKeyColor)
	row := func(name, v string) {
		_, _ = fmt.Fprintf(s, "   %-24s %s\n", name, clean(v))
	}

	_, _ = fmt.Fprintf(s, "\n [::b]Notifications[-:-:-]\n")
	row("Desktop permission", info.Permission)
	row("Sound", onOff(info.Sound))
	_, _ = fmt.Fprintf(s, "   [%s]n[-] to ask for desktop notification permission\n", key)

	_, _ = fmt.Fprintf(s, "\n [::b]Live updates[-:-:-]\n")
	row("Source", info.PushMode)
	row("State", string(info.Live))
	row("Automatic reconnect", onOff(info.AutoRetry))
	_, _ = fmt.Fprintf(s, "   [%s]r[-] to resubscribe\n", key)

	_, _ = fmt.Fprintf(s, "\n [::b]WhatsApp inbox[-:-:-]\n")
	if info.WhatsApp == "" {
		row("State", "disabled")
	} else {
		row("State", string(info.WhatsApp))
		_, _ = fmt.Fprintf(s, "   [%s]p[-] to pair a phone\n", key)
	}

	_, _ = fmt.Fprintf(s, "\n [::b]Inboxes[-:-:-]\n")
	if len(info.Inboxes) == 0 {
		row("", "none configured")
	}
	for _, ib := range info.Inboxes {
		mark := ""
		if ib.ID == info.Primary {
			mark = " (primary)"
		}
		row(ib.Label(), ib.PhoneAddress+mark)
	}

	_, _ = fmt.Fprintf(s, "\n [%s]config: %s[-]\n", ui.Tag(s.theme.MutedColor), clean(info.ConfigPath))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
