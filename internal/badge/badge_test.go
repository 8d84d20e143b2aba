package badge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sumithjoshi99/medconnect/internal/conversation"
)

func convs(unread ...int) []conversation.Conversation {
	out := make([]conversation.Conversation, len(unread))
	for i, n := range unread {
		out[i].Unread = n
	}
	return out
}

func TestCalculate(t *testing.T) {
	global := convs(3, 0, 2)
	scoped := convs(1)

	tests := []struct {
		name string
		in   Input
		want Badge
	}{
		{"dashboard uses global", Input{Screen: Dashboard, Global: global, Scoped: scoped, InboxLabel: "Mount Vernon"},
			Badge{Count: 5, Display: "5", Label: GlobalLabel}},
		{"messaging uses scoped", Input{Screen: Messaging, Global: global, Scoped: scoped, InboxLabel: "Mount Vernon"},
			Badge{Count: 1, Display: "1", Label: "Mount Vernon"}},
		{"messaging without inbox", Input{Screen: Messaging, Global: global, Scoped: global},
			Badge{Count: 5, Display: "5", Label: GlobalLabel}},
		{"other screen uses global", Input{Screen: Settings, Global: global, Scoped: scoped, InboxLabel: "Mount Vernon"},
			Badge{Count: 5, Display: "5", Label: GlobalLabel}},
		{"empty", Input{Screen: Dashboard}, Badge{Label: GlobalLabel}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Calculate(tt.in))
		})
	}
}

func TestCapKeepsExactCount(t *testing.T) {
	b := Calculate(Input{Screen: Dashboard, Global: convs(60, 60)})
	assert.Equal(t, 120, b.Count)
	assert.Equal(t, "99+", b.Display)

	b = Calculate(Input{Screen: Dashboard, Global: convs(99)})
	assert.Equal(t, "99", b.Display)

	b = Calculate(Input{Screen: Dashboard, Global: convs(10), Cap: 9})
	assert.Equal(t, "9+", b.Display)
	assert.Equal(t, 10, b.Count)
}
