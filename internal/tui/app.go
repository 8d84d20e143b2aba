// Package tui is the terminal dashboard: conversation lists per inbox,
// unread badges, toasts and notification popups on top of the engine.
package tui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"github.com/sumithjoshi99/medconnect/internal/inbox"
	"github.com/sumithjoshi99/medconnect/internal/live"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/shell"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui/keys"
	"github.com/sumithjoshi99/medconnect/internal/tui/model"
	"github.com/sumithjoshi99/medconnect/internal/tui/ui"
	"github.com/sumithjoshi99/medconnect/internal/tui/views"
	"github.com/sumithjoshi99/medconnect/internal/wa"
	"go.uber.org/zap"
)

const (
	pageHelp    = "help"
	pagePair    = "pair"
	pageConfirm = "confirm"
)

// ThreadSource loads a conversation's messages.
type ThreadSource interface {
	ListMessages(ctx context.Context, f store.MessageFilter) ([]store.Message, error)
}

// Engine is the running engine the dashboard drives. Bridge is nil when
// the WhatsApp inbox is disabled.
type Engine struct {
	Shell      *shell.Shell
	Dispatcher *notify.Dispatcher
	Listener   *live.Listener
	Bridge     *wa.Bridge
	Messages   ThreadSource
	Bus        *bus.Bus
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
}

type popup struct {
	name   string
	open   func()
	handle *popupHandle
}

// App is the dashboard. It doubles as the desktop notifier, sound player
// and window focuser of the notification dispatcher, so it exists before
// the engine and is bound to it afterwards.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flash    *ui.FlashModel
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	layout   *tview.Flex
	status   *views.StatusBar
	registry *keys.Registry
	vm       *model.ViewModel
	logger   *zap.Logger

	dashboard *views.ConversationList
	scoped    *views.ConversationList
	thread    *views.Thread
	messaging *tview.Flex
	patient   *views.PatientInfo
	settings  *views.Settings
	help      *views.HelpView
	pair      *views.PairView

	eng Engine

	mu         sync.Mutex
	screen     tcell.Screen
	popups     []popup
	pairCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the dashboard without an engine.
func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		menu:      ui.NewMenu(theme),
		crumbs:    ui.NewCrumbs(theme),
		flash:     ui.NewFlashModel(),
		flashBar:  ui.NewFlashBar(theme),
		prompt:    ui.NewPrompt(theme),
		status:    views.NewStatusBar(theme),
		registry:  keys.NewRegistry(),
		vm:        model.New(),
		logger:    logger,
		dashboard: views.NewConversationList(theme, "All locations"),
		scoped:    views.NewConversationList(theme, "Inbox"),
		thread:    views.NewThread(theme),
		patient:   views.NewPatientInfo(theme),
		settings:  views.NewSettings(theme),
		help:      views.NewHelpView(theme),
		pair:      views.NewPairView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.setupLayout()
	return a
}

// Bind attaches the engine. It must be called before Run.
func (a *App) Bind(e Engine) {
	a.eng = e
	if e.Logger != nil {
		a.logger = e.Logger.Named("tui")
	}
	a.setupBindings()
	a.setupCallbacks()
	a.help.Update(a.helpSections())
	if e.Listener != nil {
		a.vm.SetLive(e.Listener.State())
	}
	if e.Bridge != nil {
		a.vm.SetWhatsApp(e.Bridge.Machine().Current())
	}
}

func (a *App) setupLayout() {
	a.messaging = tview.NewFlex().
		AddItem(a.scoped, 0, 2, true).
		AddItem(a.thread, 0, 3, false)

	a.pages.AddPage(string(badge.Dashboard), a.dashboard, true, false)
	a.pages.AddPage(string(badge.Messaging), a.messaging, true, false)
	a.pages.AddPage(string(badge.Patients), a.patient, true, false)
	a.pages.AddPage(string(badge.Settings), a.settings, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pagePair, a.pair, true, false)
	a.pages.ShowScreen(string(badge.Dashboard))

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.status, 1, 0, false)

	a.app.SetRoot(a.layout, true).EnableMouse(true)
	a.app.SetBeforeDrawFunc(func(s tcell.Screen) bool {
		a.mu.Lock()
		a.screen = s
		a.mu.Unlock()
		return false
	})
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(ev *tcell.EventKey) *tcell.EventKey {
	if a.app.GetFocus() == a.prompt.InputField {
		return ev
	}
	if _, ok := a.app.GetFocus().(*tview.Button); ok {
		return ev
	}
	if ev.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if a.registry.HandleEvent(a.pages.Screen(), ev) {
		return nil
	}
	return ev
}

func (a *App) setupBindings() {
	screens := []struct {
		r      rune
		screen badge.Screen
		label  string
	}{
		{'1', badge.Dashboard, "Dashboard"},
		{'2', badge.Messaging, "Messaging"},
		{'3', badge.Patients, "Patients"},
		{'4', badge.Settings, "Settings"},
	}
	for _, s := range screens {
		screen := s.screen
		a.registry.AddGlobal(&keys.Action{
			Key: tcell.KeyRune, Rune: s.r, Description: s.label, Visible: true,
			Handler: func() { a.async(func(ctx context.Context) { a.eng.Shell.SwitchScreen(ctx, screen) }) },
		})
	}
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyTab, Label: "Tab", Description: "Next inbox", Visible: true,
		Handler: func() { a.async(func(ctx context.Context) { _ = a.eng.Shell.CycleInbox(ctx, 1) }) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyBacktab, Label: "S-Tab", Description: "Previous inbox",
		Handler: func() { a.async(func(ctx context.Context) { _ = a.eng.Shell.CycleInbox(ctx, -1) }) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptFilter, a.vm.Filter()) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: func() { a.showOverlay(pageHelp, a.help) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'o', Description: "Open notification",
		Handler: a.openNewestPopup,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'x', Description: "Dismiss notification",
		Handler: a.dismissNewestPopup,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "Resubscribe live updates",
		Handler: a.resubscribe,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Description: "Allow desktop notifications",
		Handler: a.requestPermission,
	})
	if a.eng.Bridge != nil {
		a.registry.AddGlobal(&keys.Action{
			Key: tcell.KeyRune, Rune: 'p', Description: "Pair WhatsApp",
			Handler: func() { go a.runPairing() },
		})
	}

	messaging := string(badge.Messaging)
	a.registry.AddScreen(messaging, &keys.Action{
		Key: tcell.KeyRight, Label: "→", Description: "Thread", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread) },
	})
	a.registry.AddScreen(messaging, &keys.Action{
		Key: tcell.KeyLeft, Label: "←", Description: "List", Visible: true,
		Handler: func() { a.app.SetFocus(a.scoped) },
	})
}

func (a *App) setupCallbacks() {
	a.dashboard.SetOnSelect(func(id int64) {
		a.async(func(ctx context.Context) {
			if err := a.eng.Shell.SelectConversation(ctx, id); err != nil {
				return
			}
			a.eng.Shell.SwitchScreen(ctx, badge.Messaging)
		})
	})
	a.scoped.SetOnSelect(func(id int64) {
		a.async(func(ctx context.Context) { _ = a.eng.Shell.SelectConversation(ctx, id) })
	})

	a.prompt.SetOnChange(func(text string) {
		a.vm.SetFilter(text)
		a.render()
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		if mode == ui.PromptCommand {
			a.execute(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)

	a.pages.SetOnChange(func(string, []string) { a.renderChrome() })
}

// Run draws the dashboard until ctx ends or the user quits.
func (a *App) Run(ctx context.Context) error {
	if a.eng.Shell == nil {
		return errors.New("tui: no engine bound")
	}
	go func() {
		select {
		case <-ctx.Done():
			a.Stop()
		case <-a.ctx.Done():
		}
	}()

	a.vm.SetSnapshot(a.eng.Shell.Snapshot())
	a.render()

	go a.refreshLoop()
	go a.eventLoop()
	go a.tickLoop()

	err := a.app.Run()
	a.cancel()
	return err
}

// Stop ends Run.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) refreshLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.eng.Shell.Refresh():
		}
		snap := a.eng.Shell.Snapshot()
		a.vm.SetSnapshot(snap)
		a.loadThread(snap)
		a.app.QueueUpdateDraw(a.render)
	}
}

// loadThread fetches the open conversation for the messaging screen.
func (a *App) loadThread(snap shell.Snapshot) {
	if snap.Screen != badge.Messaging || snap.SelectedPatient == 0 || a.eng.Messages == nil {
		a.vm.SetThread(snap.SelectedPatient, nil)
		return
	}
	msgs, err := a.eng.Messages.ListMessages(a.ctx, model.ThreadFilter(snap))
	if err != nil {
		a.logger.Warn("load thread", zap.Int64("patient", snap.SelectedPatient), zap.Error(err))
		a.flash.Err(err)
		return
	}
	a.vm.SetThread(snap.SelectedPatient, msgs)
}

func (a *App) eventLoop() {
	toasts, releaseToasts := a.eng.Bus.Subscribe("notify.", 32)
	defer releaseToasts()
	liveCh, releaseLive := a.eng.Bus.Subscribe("live.", 16)
	defer releaseLive()
	waCh, releaseWA := a.eng.Bus.Subscribe(bus.KindWAConnection, 16)
	defer releaseWA()

	for {
		select {
		case <-a.ctx.Done():
			return
		case evt := <-toasts:
			if t, ok := evt.Payload.(notify.Toast); ok {
				a.flash.Toast(t)
			}
		case evt := <-liveCh:
			if c, ok := evt.Payload.(status.Change); ok {
				a.vm.SetLive(c.To)
				if c.To == live.TimedOut || c.To == live.Error {
					a.flash.Warn("Live updates lost: " + c.Reason)
				}
			}
		case evt := <-waCh:
			if c, ok := evt.Payload.(status.Change); ok {
				a.vm.SetWhatsApp(c.To)
				if c.To == wa.LoggedOut {
					a.flash.Warn("WhatsApp inbox logged out, press p to pair again")
				}
			}
		}
		a.app.QueueUpdateDraw(a.renderChrome)
	}
}

func (a *App) tickLoop() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-t.C:
			a.app.QueueUpdateDraw(a.renderChrome)
		}
	}
}

// render redraws everything from the view model. UI goroutine only.
func (a *App) render() {
	snap := a.vm.Snapshot()
	filter := a.vm.Filter()

	a.dashboard.Update(a.vm.GlobalRows(), snap.Inboxes, filter, len(snap.Global))
	title := badge.GlobalLabel
	if snap.Inbox != nil {
		title = snap.Inbox.Label()
	}
	a.scoped.SetLabel(title)
	a.scoped.Update(a.vm.ScopedRows(), snap.Inboxes, filter, len(snap.Scoped))

	conv, ok := a.vm.SelectedConversation()
	pid, msgs := a.vm.Thread()
	if ok && pid == conv.Patient.ID {
		a.thread.Update(conv.Patient, snap.Inboxes, msgs)
	} else {
		a.thread.Update(store.Patient{}, nil, nil)
	}
	a.patient.Update(conv, ok, snap.Inboxes)

	if a.pages.Screen() != string(snap.Screen) {
		a.pages.ShowScreen(string(snap.Screen))
		a.focusTop()
	}
	a.renderChrome()
}

// renderChrome redraws the header, crumbs, settings and status lines.
func (a *App) renderChrome() {
	snap := a.vm.Snapshot()
	liveState, waState := a.vm.States()

	var hints []ui.MenuHint
	for _, h := range a.registry.Hints(a.pages.Screen()) {
		hints = append(hints, ui.MenuHint{Key: h.Key, Description: h.Description, Numeric: len(h.Key) == 1 && h.Key >= "1" && h.Key <= "9"})
	}
	if top := a.topComponent(); top != nil {
		hints = append(top.Hints(), hints...)
	}
	a.menu.Update(hints)

	inboxLabel := ""
	if snap.Inbox != nil {
		inboxLabel = snap.Inbox.Label()
	}
	crumb := ""
	if conv, ok := a.vm.SelectedConversation(); ok && snap.Screen != badge.Dashboard {
		crumb = conv.Patient.Name
	}
	a.crumbs.Update(orGlobal(inboxLabel), screenTitle(snap.Screen), crumb)

	if a.eng.Config != nil {
		info := views.SettingsInfo{
			Sound:      a.eng.Config.Notifications.Sound,
			AutoRetry:  a.eng.Config.Reconnect.Auto,
			PushMode:   a.eng.Config.Push.Mode,
			Live:       liveState,
			WhatsApp:   waState,
			Inboxes:    snap.Inboxes,
			ConfigPath: a.eng.ConfigPath,
		}
		if a.eng.Dispatcher != nil {
			info.Permission = string(a.eng.Dispatcher.Permission())
		}
		if p, ok := inbox.EffectivePrimary(snap.Inboxes); ok {
			info.Primary = p.ID
		}
		a.settings.Update(info)
	}

	a.status.SetInbox(inboxLabel)
	a.status.SetBadge(snap.Badge)
	a.status.SetLive(liveState)
	a.status.SetWhatsApp(waState)
	a.status.Render(time.Now())
	a.flashBar.Update(a.flash.Current())
}

func (a *App) topComponent() ui.Component {
	switch a.pages.Top() {
	case pageHelp:
		return a.help
	case pagePair:
		return a.pair
	case string(badge.Dashboard):
		return a.dashboard
	case string(badge.Messaging):
		if a.app.GetFocus() == a.thread {
			return a.thread
		}
		return a.scoped
	}
	return nil
}

func (a *App) focusTop() {
	switch a.pages.Top() {
	case pageHelp:
		a.app.SetFocus(a.help)
	case pagePair:
		a.app.SetFocus(a.pair)
	case string(badge.Dashboard):
		a.app.SetFocus(a.dashboard)
	case string(badge.Messaging):
		a.app.SetFocus(a.scoped)
	case string(badge.Patients):
		a.app.SetFocus(a.patient)
	case string(badge.Settings):
		a.app.SetFocus(a.settings)
	}
}

// back closes the help or pairing overlay, else leaves the thread.
func (a *App) back() {
	for _, name := range []string{pagePair, pageHelp} {
		if a.pages.Top() == name {
			if name == pagePair {
				a.cancelPairing()
			}
			a.pages.Dismiss(name, false)
			a.focusTop()
			return
		}
	}
	if a.app.GetFocus() == a.thread {
		a.app.SetFocus(a.scoped)
	}
}

func (a *App) showOverlay(name string, p tview.Primitive) {
	a.pages.Overlay(name)
	a.app.SetFocus(p)
}

func (a *App) openPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode, text)
	a.layout.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	a.focusTop()
}

// async runs fn off the UI goroutine; shell calls block on the store.
func (a *App) async(fn func(ctx context.Context)) {
	go fn(a.ctx)
}

func (a *App) resubscribe() {
	if a.eng.Listener == nil {
		return
	}
	a.flash.Info("Resubscribing to live updates")
	go a.eng.Listener.Resubscribe()
}

func (a *App) requestPermission() {
	if a.eng.Dispatcher == nil {
		return
	}
	a.async(func(ctx context.Context) {
		p, err := a.eng.Dispatcher.RequestPermission(ctx)
		if err != nil {
			a.flash.Err(err)
		} else {
			a.flash.Info("Desktop notifications: " + string(p))
		}
		a.app.QueueUpdateDraw(a.renderChrome)
	})
}

func orGlobal(label string) string {
	if label == "" {
		return badge.GlobalLabel
	}
	return label
}

func screenTitle(s badge.Screen) string {
	switch s {
	case badge.Dashboard:
		return "Dashboard"
	case badge.Messaging:
		return "Messaging"
	case badge.Patients:
		return "Patients"
	case badge.Settings:
		return "Settings"
	}
	return string(s)
}
