package tui

import (
	"context"
	"strconv"
	"strings"

	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui/keys"
	"github.com/sumithjoshi99/medconnect/internal/tui/views"
)

// Command is a parsed ':' prompt line.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command line without the leading ':'.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	name, args, _ := strings.Cut(input, " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}

// ResolveInbox finds an inbox by 1-based position, phone address or
// case-insensitive name prefix.
func ResolveInbox(inboxes []store.Inbox, arg string) (int64, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(inboxes) && !strings.HasPrefix(arg, "+") {
		return inboxes[n-1].ID, true
	}
	for _, ib := range inboxes {
		if ib.PhoneAddress == arg {
			return ib.ID, true
		}
	}
	lower := strings.ToLower(arg)
	for _, ib := range inboxes {
		if strings.HasPrefix(strings.ToLower(ib.Label()), lower) {
			return ib.ID, true
		}
	}
	return 0, false
}

// ParseScreen maps a screen name or its number key to a screen.
func ParseScreen(arg string) (badge.Screen, bool) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "1", "dashboard", "home":
		return badge.Dashboard, true
	case "2", "messaging", "messages", "inbox":
		return badge.Messaging, true
	case "3", "patients", "patient":
		return badge.Patients, true
	case "4", "settings":
		return badge.Settings, true
	}
	return "", false
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "":
	case "inbox", "i":
		id, ok := ResolveInbox(a.vm.Snapshot().Inboxes, cmd.Args)
		if !ok {
			a.flash.Warn("No inbox matches " + strconv.Quote(cmd.Args))
			return
		}
		a.async(func(ctx context.Context) { _ = a.eng.Shell.SwitchInbox(ctx, id) })
	case "screen", "s":
		screen, ok := ParseScreen(cmd.Args)
		if !ok {
			a.flash.Warn("Unknown screen " + strconv.Quote(cmd.Args))
			return
		}
		a.async(func(ctx context.Context) { a.eng.Shell.SwitchScreen(ctx, screen) })
	case "notify":
		a.requestPermission()
	case "resubscribe":
		a.resubscribe()
	case "pair":
		go a.runPairing()
	case "help", "h":
		a.showOverlay(pageHelp, a.help)
	case "quit", "q":
		a.Stop()
	default:
		a.flash.Warn("Unknown command :" + cmd.Name)
	}
}

func (a *App) helpSections() []views.HelpSection {
	all := []keys.Hint{
		{Key: "1-4", Description: "Dashboard, messaging, patients, settings"},
		{Key: "Tab / S-Tab", Description: "Next / previous inbox"},
		{Key: "Enter", Description: "Open conversation"},
		{Key: "/", Description: "Filter conversations by name or phone"},
		{Key: ":", Description: "Command prompt"},
		{Key: "o / x", Description: "Open / dismiss newest notification"},
		{Key: "n", Description: "Allow desktop notifications"},
		{Key: "r", Description: "Resubscribe live updates"},
		{Key: "Esc", Description: "Close overlay, leave thread"},
		{Key: "q", Description: "Quit"},
	}
	if a.eng.Bridge != nil {
		all = append(all, keys.Hint{Key: "p", Description: "Pair the WhatsApp inbox"})
	}
	return []views.HelpSection{
		{Title: "Keys", Hints: all},
		{Title: "Messaging", Hints: a.registry.ScreenHints(string(badge.Messaging))},
	}
}
