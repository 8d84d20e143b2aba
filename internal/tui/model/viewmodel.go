// Package model holds what the dashboard renders: the latest shell
// snapshot, the list filter, the open thread and connection states.
package model

import (
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/sumithjoshi99/medconnect/internal/conversation"
	"github.com/sumithjoshi99/medconnect/internal/inbox"
	"github.com/sumithjoshi99/medconnect/internal/shell"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

// Row is a conversation that passed the filter. Matched holds byte
// offsets into the patient name that matched the query.
type Row struct {
	Conversation conversation.Conversation
	Matched      []int
}

// ViewModel is shared between the UI goroutine and background fetches.
type ViewModel struct {
	mu sync.RWMutex

	snap          shell.Snapshot
	filter        string
	threadPatient int64
	thread        []store.Message
	live          status.State
	whatsapp      status.State
}

// New creates an empty view model.
func New() *ViewModel {
	return &ViewModel{}
}

// SetSnapshot stores the latest shell state.
func (vm *ViewModel) SetSnapshot(s shell.Snapshot) {
	vm.mu.Lock()
	vm.snap = s
	vm.mu.Unlock()
}

// Snapshot returns the latest shell state.
func (vm *ViewModel) Snapshot() shell.Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.snap
}

// SetFilter sets the list filter query.
func (vm *ViewModel) SetFilter(q string) {
	vm.mu.Lock()
	vm.filter = strings.TrimSpace(q)
	vm.mu.Unlock()
}

// Filter returns the list filter query.
func (vm *ViewModel) Filter() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.filter
}

// GlobalRows returns the filtered global list.
func (vm *ViewModel) GlobalRows() []Row {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return Filter(vm.snap.Global, vm.filter)
}

// ScopedRows returns the filtered list of the selected inbox.
func (vm *ViewModel) ScopedRows() []Row {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return Filter(vm.snap.Scoped, vm.filter)
}

// SetThread stores the messages of the open conversation.
func (vm *ViewModel) SetThread(patientID int64, msgs []store.Message) {
	vm.mu.Lock()
	vm.threadPatient = patientID
	vm.thread = msgs
	vm.mu.Unlock()
}

// Thread returns the open conversation's patient and messages.
func (vm *ViewModel) Thread() (int64, []store.Message) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.threadPatient, vm.thread
}

// SelectedConversation finds the selected patient in the global list.
func (vm *ViewModel) SelectedConversation() (conversation.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.snap.Global {
		if c.Patient.ID == vm.snap.SelectedPatient {
			return c, true
		}
	}
	return conversation.Conversation{}, false
}

// SetLive records the live listener state.
func (vm *ViewModel) SetLive(s status.State) {
	vm.mu.Lock()
	vm.live = s
	vm.mu.Unlock()
}

// SetWhatsApp records the WhatsApp bridge state.
func (vm *ViewModel) SetWhatsApp(s status.State) {
	vm.mu.Lock()
	vm.whatsapp = s
	vm.mu.Unlock()
}

// States returns the live and WhatsApp states; empty when unknown.
func (vm *ViewModel) States() (live, whatsapp status.State) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.live, vm.whatsapp
}

type source []conversation.Conversation

func (s source) String(i int) string { return s[i].Patient.Name }
func (s source) Len() int            { return len(s) }

type phoneSource []conversation.Conversation

func (s phoneSource) String(i int) string { return s[i].Patient.Phone }
func (s phoneSource) Len() int            { return len(s) }

// Filter keeps conversations whose patient name or phone fuzzily matches
// query, in their original order. An empty query keeps everything.
func Filter(convs []conversation.Conversation, query string) []Row {
	if query == "" {
		rows := make([]Row, len(convs))
		for i, c := range convs {
			rows[i] = Row{Conversation: c}
		}
		return rows
	}
	hits := make(map[int][]int)
	for _, m := range fuzzy.FindFrom(query, source(convs)) {
		hits[m.Index] = m.MatchedIndexes
	}
	for _, m := range fuzzy.FindFrom(query, phoneSource(convs)) {
		if _, ok := hits[m.Index]; !ok {
			hits[m.Index] = nil
		}
	}
	idx := make([]int, 0, len(hits))
	for i := range hits {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	rows := make([]Row, len(idx))
	for n, i := range idx {
		rows[n] = Row{Conversation: convs[i], Matched: hits[i]}
	}
	return rows
}

// ThreadFilter is the message query for the open conversation: all of the
// patient's messages under Global, the selected inbox's (plus legacy ones
// on the effective primary) otherwise.
func ThreadFilter(snap shell.Snapshot) store.MessageFilter {
	f := store.MessageFilter{PatientID: snap.SelectedPatient}
	if snap.Inbox == nil {
		return f
	}
	f.InboxAddress = snap.Inbox.PhoneAddress
	if p, ok := inbox.EffectivePrimary(snap.Inboxes); ok && p.ID == snap.Inbox.ID {
		f.IncludeLegacy = true
	}
	return f
}
