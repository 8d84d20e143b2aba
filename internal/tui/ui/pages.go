package ui

import "github.com/rivo/tview"

// Pages shows exactly one screen with any number of overlays on top.
// Overlays can be dismissed in any order; the topmost one has focus.
type Pages struct {
	*tview.Pages
	screen   string
	overlays []string
	onChange func(screen string, overlays []string)
}

// NewPages creates an empty page manager.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers a callback fired after every change.
func (p *Pages) SetOnChange(fn func(screen string, overlays []string)) {
	p.onChange = fn
}

// ShowScreen replaces the visible screen. Overlays stay open.
func (p *Pages) ShowScreen(name string) {
	if p.screen != "" && p.screen != name {
		p.HidePage(p.screen)
	}
	p.screen = name
	p.ShowPage(name)
	p.raiseOverlays()
	p.notify()
}

// Overlay adds a page, drawn above the screen and earlier overlays. The
// page must already be added with resize=false if it should stay compact.
func (p *Pages) Overlay(name string) {
	p.drop(name)
	p.overlays = append(p.overlays, name)
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Dismiss hides an overlay; removal also deletes the page when remove is set.
// Dismissing an unknown name is a no-op.
func (p *Pages) Dismiss(name string, remove bool) bool {
	if !p.drop(name) {
		return false
	}
	if remove {
		p.RemovePage(name)
	} else {
		p.HidePage(name)
	}
	p.notify()
	return true
}

// Top returns the topmost overlay, or the screen when none is open.
func (p *Pages) Top() string {
	if n := len(p.overlays); n > 0 {
		return p.overlays[n-1]
	}
	return p.screen
}

// Screen returns the visible screen.
func (p *Pages) Screen() string {
	return p.screen
}

// Overlays returns a copy of the open overlays, bottom first.
func (p *Pages) Overlays() []string {
	return append([]string(nil), p.overlays...)
}

func (p *Pages) drop(name string) bool {
	for i, n := range p.overlays {
		if n == name {
			p.overlays = append(p.overlays[:i], p.overlays[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pages) raiseOverlays() {
	for _, n := range p.overlays {
		p.SendToFront(n)
	}
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.screen, p.Overlays())
	}
}
