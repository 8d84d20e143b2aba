package tui

import (
	"testing"

	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"inbox Mount Vernon", Command{Name: "inbox", Args: "Mount Vernon"}},
		{":Quit", Command{Name: "quit"}},
		{"  screen   messaging ", Command{Name: "screen", Args: "messaging"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestResolveInbox(t *testing.T) {
	inboxes := []store.Inbox{
		{ID: 10, PhoneAddress: "+19145550002", DisplayName: "New Rochelle"},
		{ID: 11, PhoneAddress: "+19145550001", DisplayName: "Mount Vernon"},
	}
	tests := []struct {
		arg    string
		want   int64
		wantOK bool
	}{
		{"2", 11, true},
		{"+19145550002", 10, true},
		{"mount", 11, true},
		{"New Rochelle", 10, true},
		{"3", 0, false},
		{"yonkers", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ResolveInbox(inboxes, tt.arg)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ResolveInbox(%q) = %d, %v; want %d, %v", tt.arg, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseScreen(t *testing.T) {
	for arg, want := range map[string]badge.Screen{
		"1":         badge.Dashboard,
		"Messaging": badge.Messaging,
		"patients":  badge.Patients,
		"4":         badge.Settings,
	} {
		got, ok := ParseScreen(arg)
		if !ok || got != want {
			t.Errorf("ParseScreen(%q) = %q, %v; want %q", arg, got, ok, want)
		}
	}
	if _, ok := ParseScreen("reports"); ok {
		t.Error("unknown screen should not parse")
	}
}
