package conversation

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

// Memo caches the most recent Compute result per scope, keyed on a
// structural hash of the inputs. It is safe for concurrent use.
type Memo struct {
	mu      sync.Mutex
	entries map[Scope]memoEntry
	hits    int
	misses  int
}

type memoEntry struct {
	key   uint64
	convs []Conversation
}

// NewMemo creates an empty memo.
func NewMemo() *Memo {
	return &Memo{entries: make(map[Scope]memoEntry)}
}

// Compute returns Compute(in, scope), reusing the previous result for the
// same scope when the inputs hash identically. The returned slice is a copy.
func (m *Memo) Compute(in Input, scope Scope) []Conversation {
	key := Key(in, scope)

	m.mu.Lock()
	if e, ok := m.entries[scope]; ok && e.key == key {
		m.hits++
		m.mu.Unlock()
		return clone(e.convs)
	}
	m.misses++
	m.mu.Unlock()

	convs := Compute(in, scope)

	m.mu.Lock()
	m.entries[scope] = memoEntry{key: key, convs: convs}
	m.mu.Unlock()
	return clone(convs)
}

// Stats returns cache hits and misses so far.
func (m *Memo) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Key hashes every input field that can reach a computation's output,
// including the patient and message fields copied into conversations.
// Message maps are walked in patient order so the key is deterministic.
func Key(in Input, scope Scope) uint64 {
	h := xxhash.New()
	var buf []byte
	putInt := func(v int64) {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(v))
		_, _ = h.Write(buf)
	}
	putString := func(s string) {
		putInt(int64(len(s)))
		_, _ = h.WriteString(s)
	}

	putInt(scope.InboxID())
	putInt(int64(len(in.Inboxes)))
	for _, ib := range in.Inboxes {
		putInt(ib.ID)
		putString(ib.PhoneAddress)
		putString(ib.DisplayName)
		putInt(boolInt(ib.Active))
		putInt(boolInt(ib.Primary))
		putInt(ib.CreatedAt)
	}
	putInt(int64(len(in.Patients)))
	for _, p := range in.Patients {
		putInt(p.ID)
		putString(p.Name)
		putString(p.Phone)
		putString(p.Email)
		putString(p.PreferredChannel)
		putString(p.Status)
		putInt(p.CreatedAt)
		msgs := in.Messages[p.ID]
		putInt(int64(len(msgs)))
		for i := range msgs {
			putMessage(putInt, putString, &msgs[i])
		}
	}
	return h.Sum64()
}

func putMessage(putInt func(int64), putString func(string), m *store.Message) {
	putInt(m.ID)
	putInt(m.PatientID)
	putString(string(m.Direction))
	putString(m.Channel)
	putString(m.ExternalID)
	putString(m.InboxAddress)
	putString(m.Body)
	putInt(m.CreatedAt)
	switch {
	case m.Read == nil:
		putInt(0)
	case *m.Read:
		putInt(2)
	default:
		putInt(1)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func clone(convs []Conversation) []Conversation {
	out := make([]Conversation, len(convs))
	copy(out, convs)
	return out
}
