// Package keys maps key presses to dashboard actions, per screen.
package keys

import (
	"sort"

	"github.com/gdamore/tcell/v2"
)

// Action is one key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // key as shown in hints, e.g. "Tab"
	Description string
	Handler     func()
	Visible     bool
}

// Matches reports whether ev triggers a.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Hint is a shortcut for display.
type Hint struct {
	Key         string
	Description string
}

// Registry holds bindings: global ones and ones bound to a single screen.
// Screen bindings win over global ones.
type Registry struct {
	global  []*Action
	screens map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{screens: make(map[string][]*Action)}
}

// AddGlobal binds an action on every screen.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// AddScreen binds an action on one screen.
func (r *Registry) AddScreen(screen string, a *Action) {
	r.screens[screen] = append(r.screens[screen], a)
}

// Hints returns the visible shortcuts for screen, screen bindings
// first, each group sorted by key.
func (r *Registry) Hints(screen string) []Hint {
	return append(hints(r.screens[screen]), hints(r.global)...)
}

// ScreenHints returns only the visible shortcuts bound to screen.
func (r *Registry) ScreenHints(screen string) []Hint {
	return hints(r.screens[screen])
}

// HandleEvent runs the first matching action and reports whether one ran.
func (r *Registry) HandleEvent(screen string, ev *tcell.EventKey) bool {
	for _, group := range [][]*Action{r.screens[screen], r.global} {
		for _, a := range group {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}

func hints(actions []*Action) []Hint {
	var out []Hint
	for _, a := range actions {
		if !a.Visible {
			continue
		}
		label := a.Label
		if label == "" {
			label = string(a.Rune)
		}
		out = append(out, Hint{Key: label, Description: a.Description})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
