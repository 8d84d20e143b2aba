package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestScreenBindingWinsOverGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Handler: func() { got = "global" }})
	r.AddScreen("messaging", &Action{Key: tcell.KeyRune, Rune: 'r', Handler: func() { got = "screen" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("messaging", ev) || got != "screen" {
		t.Errorf("messaging: handled by %q, want screen", got)
	}
	if !r.HandleEvent("dashboard", ev) || got != "global" {
		t.Errorf("dashboard: handled by %q, want global", got)
	}
	if r.HandleEvent("dashboard", tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone)) {
		t.Error("unbound key should not be handled")
	}
}

func TestHintsSortedAndVisibleOnly(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'x', Description: "Hidden"})
	r.AddScreen("messaging", &Action{Key: tcell.KeyLeft, Label: "Left", Description: "List", Visible: true})

	got := r.Hints("messaging")
	want := []Hint{{"Left", "List"}, {"?", "Help"}, {"q", "Quit"}}
	if len(got) != len(want) {
		t.Fatalf("Hints = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Hints[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if n := len(r.ScreenHints("dashboard")); n != 0 {
		t.Errorf("dashboard has %d screen hints, want 0", n)
	}
}
