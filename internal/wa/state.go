package wa

import (
	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/status"
)

// Connection states of the WhatsApp inbox.
const (
	Disconnected status.State = "DISCONNECTED"
	Connecting   status.State = "CONNECTING"
	Connected    status.State = "CONNECTED"
	LoggedOut    status.State = "LOGGED_OUT"
)

// Transitions is the connection lifecycle. whatsmeow reconnects on its
// own, so Disconnected may go straight back to Connected.
var Transitions = status.Transitions{
	Disconnected: {Connecting, Connected, LoggedOut},
	Connecting:   {Connected, Disconnected, LoggedOut},
	Connected:    {Disconnected, LoggedOut},
	LoggedOut:    {Connecting},
}

// NewConnectionMachine returns a machine starting in Disconnected that
// publishes wa.connection changes on b.
func NewConnectionMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(bus.KindWAConnection, Disconnected, Transitions, b)
}
