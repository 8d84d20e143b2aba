package tui

import (
	"context"
	"errors"
	"sync"

	"github.com/rivo/tview"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/tui/views"
)

var errNoScreen = errors.New("terminal not ready")

// Show implements notify.DesktopNotifier with a popup that does not take
// focus: o opens the newest, x dismisses it, the mouse works on both.
func (a *App) Show(n notify.Desktop) (notify.Handle, error) {
	name := "popup-" + n.ID
	h := &popupHandle{app: a, name: name}
	open := func() { go n.OnClick() }
	a.app.QueueUpdateDraw(func() {
		p := views.NewPopup(a.theme, n.Title, n.Body, open, h.Close)
		a.pages.AddPage(name, p, false, false)
		a.pages.Overlay(name)
		a.mu.Lock()
		a.popups = append(a.popups, popup{name: name, open: open, handle: h})
		a.mu.Unlock()
	})
	return h, nil
}

type popupHandle struct {
	app  *App
	name string
	once sync.Once
}

// Close removes the popup. Safe from any goroutine, and more than once.
func (h *popupHandle) Close() {
	h.once.Do(func() {
		h.app.app.QueueUpdateDraw(func() { h.app.removePopup(h.name) })
	})
}

func (a *App) removePopup(name string) {
	a.mu.Lock()
	for i, p := range a.popups {
		if p.name == name {
			a.popups = append(a.popups[:i], a.popups[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
	if a.pages.Dismiss(name, true) {
		a.focusTop()
	}
}

func (a *App) newestPopup() (popup, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.popups) == 0 {
		return popup{}, false
	}
	return a.popups[len(a.popups)-1], true
}

func (a *App) openNewestPopup() {
	if p, ok := a.newestPopup(); ok {
		p.open()
	}
}

func (a *App) dismissNewestPopup() {
	if p, ok := a.newestPopup(); ok {
		p.handle.Close()
	}
}

// Focus implements notify.WindowFocuser: it closes help and pairing
// overlays and focuses the active screen.
func (a *App) Focus() {
	a.app.QueueUpdateDraw(func() {
		a.pages.Dismiss(pageHelp, false)
		a.pages.Dismiss(pagePair, false)
		a.focusTop()
	})
}

// Play implements notify.SoundPlayer with the terminal bell.
func (a *App) Play() error {
	a.mu.Lock()
	s := a.screen
	a.mu.Unlock()
	if s == nil {
		return errNoScreen
	}
	return s.Beep()
}

// AskPermission asks whether desktop notifications may be shown. It
// blocks until answered and must not run on the UI goroutine.
func (a *App) AskPermission(ctx context.Context) (bool, error) {
	answer := make(chan bool, 1)
	a.app.QueueUpdateDraw(func() {
		m := tview.NewModal().
			SetText("Show a popup for every new patient message?").
			AddButtons([]string{"Allow", "Deny"}).
			SetDoneFunc(func(idx int, _ string) {
				answer <- idx == 0
				a.pages.Dismiss(pageConfirm, true)
				a.focusTop()
			})
		a.pages.AddPage(pageConfirm, m, false, false)
		a.pages.Overlay(pageConfirm)
		a.app.SetFocus(m)
	})
	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		a.app.QueueUpdateDraw(func() {
			if a.pages.Dismiss(pageConfirm, true) {
				a.focusTop()
			}
		})
		return false, ctx.Err()
	}
}
