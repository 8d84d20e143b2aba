package store

// Direction tells whether a message was received from or sent to a patient.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Patient is a read-only projection of a patient record.
type Patient struct {
	ID               int64
	Name             string
	Phone            string
	Email            string
	PreferredChannel string
	Status           string
	CreatedAt        int64
}

// Inbox is a configured phone number messages are sent and received through.
type Inbox struct {
	ID           int64
	PhoneAddress string
	DisplayName  string
	Active       bool
	Primary      bool
	CreatedAt    int64
}

// Label returns the display name, falling back to the phone address.
func (i *Inbox) Label() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.PhoneAddress
}

// Message is a single inbound or outbound message for a patient.
// InboxAddress is the inbox-side number (destination for inbound, origin
// for outbound); empty means the message predates inbox attribution.
// Read is nil when the flag was never set, which counts as unread.
type Message struct {
	ID           int64
	PatientID    int64
	Direction    Direction
	Body         string
	Channel      string
	InboxAddress string
	Read         *bool
	ExternalID   string
	CreatedAt    int64
}

// Unread reports whether the message counts towards unread totals.
func (m *Message) Unread() bool {
	return m.Direction == Inbound && (m.Read == nil || !*m.Read)
}

// Legacy reports whether the message has no recorded inbox.
func (m *Message) Legacy() bool {
	return m.InboxAddress == ""
}

// MessageFilter narrows ListMessages and CountUnread.
// Zero PatientID and empty InboxAddress match everything. IncludeLegacy
// additionally matches un-attributed messages when InboxAddress is set.
type MessageFilter struct {
	PatientID     int64
	InboxAddress  string
	IncludeLegacy bool
}
