package views

import (
	"strings"
	"testing"
)

func TestRenderQR(t *testing.T) {
	art, err := RenderQR("2@pairing-ref,device-key,identity-key,adv-secret")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(art, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("got %d lines, want a full code", len(lines))
	}
	if !strings.ContainsAny(art, "█▀▄") {
		t.Error("no block characters in output")
	}
	width := len([]rune(lines[0]))
	for i, l := range lines {
		if n := len([]rune(l)); n != width {
			t.Fatalf("line %d has width %d, want %d", i, n, width)
		}
	}
}

func TestPreviewFlattensAndTruncates(t *testing.T) {
	if got := preview("hello\n  there", 20); got != "hello there" {
		t.Errorf("preview = %q", got)
	}
	if got := preview("abcdefghij", 5); got != "abcd…" {
		t.Errorf("preview = %q, want abcd…", got)
	}
}

func TestCleanDropsJoinersAndEscapesTags(t *testing.T) {
	if got := clean("👍\U0001F3FB ok"); got != "👍 ok" {
		t.Errorf("clean = %q", got)
	}
	if got := clean("[red]x"); got == "[red]x" {
		t.Error("color tags should be escaped")
	}
}
