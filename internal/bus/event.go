package bus

import "time"

// Event kinds published on the bus. Subscribers filter by prefix, so the
// segment before the dot is the namespace.
const (
	KindWAMessage       = "wa.message"
	KindWAHistoryBatch  = "wa.history_batch"
	KindWAConnection    = "wa.connection"
	KindWAQR            = "wa.qr"
	KindMessageInserted = "message.inserted"
	KindIngestBatch     = "ingest.batch"
	KindLiveStatus      = "live.status_changed"
	KindShellUpdated    = "shell.updated"
	KindNotifyToast     = "notify.toast"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
