// Package inbox holds the set of configured phone-number inboxes and the
// currently selected one.
package inbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.uber.org/zap"
)

// Lister loads the active inboxes.
type Lister interface {
	ListActiveInboxes(ctx context.Context) ([]store.Inbox, error)
}

// Registry caches the active inboxes and tracks the selected one.
// Select must only be called by the owning shell; everything else reads.
type Registry struct {
	mu       sync.RWMutex
	lister   Lister
	logger   *zap.Logger
	inboxes  []store.Inbox
	primary  int64
	selected int64
}

// NewRegistry creates an empty registry backed by l.
func NewRegistry(l Lister, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{lister: l, logger: logger}
}

// Load replaces the cached inboxes. On failure the list is emptied, the
// selection cleared and the error returned; the registry stays usable.
// When nothing is selected after a successful load, the primary is selected.
func (r *Registry) Load(ctx context.Context) error {
	inboxes, err := r.lister.ListActiveInboxes(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.inboxes = nil
		r.primary = 0
		r.selected = 0
		r.logger.Warn("inbox load failed", zap.Error(err))
		return fmt.Errorf("load inboxes: %w", err)
	}

	r.inboxes = Order(inboxes)
	r.primary = 0
	if p, ok := EffectivePrimary(r.inboxes); ok {
		r.primary = p.ID
	}
	if r.selected != 0 && indexOf(r.inboxes, r.selected) < 0 {
		r.selected = 0
	}
	if r.selected == 0 {
		r.selected = r.primary
	}
	r.logger.Info("inboxes loaded",
		zap.Int("count", len(r.inboxes)),
		zap.Int64("primary", r.primary),
		zap.Int64("selected", r.selected))
	return nil
}

// List returns the inboxes, primary first.
func (r *Registry) List() []store.Inbox {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Inbox, len(r.inboxes))
	copy(out, r.inboxes)
	return out
}

// Lookup returns the inbox with the given ID.
func (r *Registry) Lookup(id int64) (store.Inbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.inboxes, id); i >= 0 {
		return r.inboxes[i], true
	}
	return store.Inbox{}, false
}

// ByAddress returns the inbox whose phone address equals addr.
func (r *Registry) ByAddress(addr string) (store.Inbox, bool) {
	if addr == "" {
		return store.Inbox{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, in := range r.inboxes {
		if in.PhoneAddress == addr {
			return in, true
		}
	}
	return store.Inbox{}, false
}

// Primary returns the effective primary inbox, if any.
func (r *Registry) Primary() (store.Inbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.inboxes, r.primary); i >= 0 {
		return r.inboxes[i], true
	}
	return store.Inbox{}, false
}

// Selected returns the selected inbox, if any.
func (r *Registry) Selected() (store.Inbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.inboxes, r.selected); i >= 0 {
		return r.inboxes[i], true
	}
	return store.Inbox{}, false
}

// Select changes the selected inbox. Zero clears the selection.
func (r *Registry) Select(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != 0 && indexOf(r.inboxes, id) < 0 {
		return fmt.Errorf("inbox %d is not active", id)
	}
	r.selected = id
	return nil
}

// EffectivePrimary picks the inbox that gets catch-all treatment: among those
// flagged primary, the earliest created, ties broken by lowest ID. With no
// flagged inbox there is no primary and un-attributed messages belong to no
// inbox.
func EffectivePrimary(inboxes []store.Inbox) (store.Inbox, bool) {
	var (
		best  store.Inbox
		found bool
	)
	for _, in := range inboxes {
		if !in.Primary {
			continue
		}
		if !found || in.CreatedAt < best.CreatedAt || (in.CreatedAt == best.CreatedAt && in.ID < best.ID) {
			best = in
			found = true
		}
	}
	return best, found
}

// Order returns a copy of inboxes with the effective primary first and the
// rest by creation time, then ID.
func Order(inboxes []store.Inbox) []store.Inbox {
	out := make([]store.Inbox, len(inboxes))
	copy(out, inboxes)
	p, hasPrimary := EffectivePrimary(out)
	sort.SliceStable(out, func(i, j int) bool {
		if hasPrimary && (out[i].ID == p.ID) != (out[j].ID == p.ID) {
			return out[i].ID == p.ID
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func indexOf(inboxes []store.Inbox, id int64) int {
	if id == 0 {
		return -1
	}
	for i, in := range inboxes {
		if in.ID == id {
			return i
		}
	}
	return -1
}
