// Package conversation derives per-patient conversation summaries from raw
// message history, scoped to all inboxes or to a single inbox.
package conversation

import (
	"fmt"
	"sort"

	"github.com/sumithjoshi99/medconnect/internal/inbox"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

// Scope selects which messages take part in a computation.
// The zero value is the global scope.
type Scope struct {
	inboxID int64
}

// Global returns the scope covering every inbox.
func Global() Scope { return Scope{} }

// InboxScope returns the scope of a single inbox.
func InboxScope(id int64) Scope { return Scope{inboxID: id} }

// IsGlobal reports whether s covers every inbox.
func (s Scope) IsGlobal() bool { return s.inboxID == 0 }

// InboxID returns the scoped inbox, or zero for the global scope.
func (s Scope) InboxID() int64 { return s.inboxID }

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("inbox:%d", s.inboxID)
}

// Conversation summarises one patient's thread under a scope.
// LastActivity is the newest message time, or the patient's creation time
// when no message matched.
type Conversation struct {
	Patient      store.Patient
	LastMessage  *store.Message
	Unread       int
	LastActivity int64
}

// Input is everything a computation reads. Messages is keyed by patient ID.
type Input struct {
	Patients []store.Patient
	Messages map[int64][]store.Message
	Inboxes  []store.Inbox
}

// Compute builds the conversation list for scope, newest activity first,
// ties ordered by patient ID. It has no side effects.
//
// Global scope keeps patients without messages so new contacts are visible.
// Inbox scope keeps only patients with at least one matching message; the
// effective primary inbox also claims messages with no recorded inbox.
// A scope naming an unknown inbox yields an empty list.
func Compute(in Input, scope Scope) []Conversation {
	match, ok := matcher(in.Inboxes, scope)
	if !ok {
		return []Conversation{}
	}

	out := make([]Conversation, 0, len(in.Patients))
	for _, p := range in.Patients {
		c := Conversation{Patient: p, LastActivity: p.CreatedAt}
		matched := 0
		var last *store.Message
		msgs := in.Messages[p.ID]
		for i := range msgs {
			m := &msgs[i]
			if !match(m) {
				continue
			}
			matched++
			if m.Unread() {
				c.Unread++
			}
			if last == nil || m.CreatedAt > last.CreatedAt || (m.CreatedAt == last.CreatedAt && m.ID > last.ID) {
				last = m
			}
		}
		if matched == 0 && !scope.IsGlobal() {
			continue
		}
		if last != nil {
			cp := *last
			c.LastMessage = &cp
			c.LastActivity = last.CreatedAt
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		return out[i].Patient.ID < out[j].Patient.ID
	})
	return out
}

// TotalUnread sums unread counts across a conversation list.
func TotalUnread(convs []Conversation) int {
	total := 0
	for _, c := range convs {
		total += c.Unread
	}
	return total
}

// Find returns the conversation for a patient.
func Find(convs []Conversation, patientID int64) (Conversation, bool) {
	for _, c := range convs {
		if c.Patient.ID == patientID {
			return c, true
		}
	}
	return Conversation{}, false
}

// Matches reports whether m belongs to scope given the configured inboxes.
func Matches(inboxes []store.Inbox, scope Scope, m *store.Message) bool {
	match, ok := matcher(inboxes, scope)
	return ok && match(m)
}

func matcher(inboxes []store.Inbox, scope Scope) (func(*store.Message) bool, bool) {
	if scope.IsGlobal() {
		return func(*store.Message) bool { return true }, true
	}

	var target *store.Inbox
	for i := range inboxes {
		if inboxes[i].ID == scope.InboxID() {
			target = &inboxes[i]
			break
		}
	}
	if target == nil {
		return nil, false
	}

	addr := target.PhoneAddress
	primary, ok := inbox.EffectivePrimary(inboxes)
	if ok && primary.ID == target.ID {
		return func(m *store.Message) bool {
			return m.Legacy() || m.InboxAddress == addr
		}, true
	}
	return func(m *store.Message) bool {
		return m.InboxAddress == addr
	}, true
}
