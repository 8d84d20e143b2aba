// Package shell owns the navigation state of the dashboard: active screen,
// selected inbox and selected conversation, plus the conversation lists
// and badge derived from them. It is the only writer of that state.
package shell

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/conversation"
	"github.com/sumithjoshi99/medconnect/internal/inbox"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the data the shell reads and the read receipts it writes.
type Store interface {
	ListPatients(ctx context.Context) ([]store.Patient, error)
	MessagesByPatient(ctx context.Context) (map[int64][]store.Message, error)
	ListMessages(ctx context.Context, f store.MessageFilter) ([]store.Message, error)
	MarkRead(ctx context.Context, ids []int64) error
}

// Snapshot is an immutable view of the shell. Badge is what the header
// shows for the active screen; ScopedUnread is the selected inbox's total,
// kept up to date on every screen.
type Snapshot struct {
	Screen          badge.Screen
	Inbox           *store.Inbox
	Inboxes         []store.Inbox
	SelectedPatient int64
	Global          []conversation.Conversation
	Scoped          []conversation.Conversation
	Scope           conversation.Scope
	Badge           badge.Badge
	ScopedUnread    int
}

// Options wires a Shell.
type Options struct {
	Store    Store
	Registry *inbox.Registry
	Toaster  notify.Toaster
	Bus      *bus.Bus
	BadgeCap int
	Logger   *zap.Logger
}

type slot int

const (
	globalSlot slot = iota
	scopedSlot
)

// Shell implements notify.Navigator and live.Recomputer.
type Shell struct {
	store    Store
	registry *inbox.Registry
	toaster  notify.Toaster
	bus      *bus.Bus
	badgeCap int
	logger   *zap.Logger
	memo     *conversation.Memo

	requests chan struct{}
	refresh  chan struct{}

	mu           sync.Mutex
	screen       badge.Screen
	patient      int64
	global       []conversation.Conversation
	scoped       []conversation.Conversation
	scopedFor    conversation.Scope
	tokens       [2]uint64
	cancelScoped context.CancelFunc
	cancelTok    uint64
}

// New creates a shell on the dashboard screen with empty lists.
func New(opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{
		store:    opts.Store,
		registry: opts.Registry,
		toaster:  opts.Toaster,
		bus:      opts.Bus,
		badgeCap: opts.BadgeCap,
		logger:   logger,
		memo:     conversation.NewMemo(),
		requests: make(chan struct{}, 1),
		refresh:  make(chan struct{}, 1),
		screen:   badge.Dashboard,
		global:   []conversation.Conversation{},
		scoped:   []conversation.Conversation{},
	}
}

// Load reads the inboxes and computes the first lists. An inbox failure is
// toasted and leaves the shell usable with no inboxes.
func (s *Shell) Load(ctx context.Context) {
	if err := s.registry.Load(ctx); err != nil {
		s.toastError("Could not load inboxes", err)
	}
	s.Recompute(ctx)
}

// Run serves RequestRecompute until ctx is done.
func (s *Shell) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requests:
			s.Recompute(ctx)
		}
	}
}

// RequestRecompute schedules a recompute on the Run loop. Requests made
// while one is pending are merged.
func (s *Shell) RequestRecompute() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Refresh signals after every state change. Signals are merged, so a
// renderer should read Snapshot after each one.
func (s *Shell) Refresh() <-chan struct{} {
	return s.refresh
}

// Recompute refreshes the global list and the inbox-scoped one. On the
// messaging screen the scoped list is fetched with the inbox filter;
// elsewhere it is derived from the global fetch. Results of a request
// overtaken by a newer one for the same list are dropped.
func (s *Shell) Recompute(ctx context.Context) {
	s.mu.Lock()
	messaging := s.screen == badge.Messaging
	scope := s.scopeLocked()
	gTok := s.nextLocked(globalSlot)
	sTok := s.nextLocked(scopedSlot)
	var (
		sctx    context.Context
		scancel context.CancelFunc
	)
	if messaging {
		sctx, scancel = s.scopedContextLocked(ctx, sTok)
	}
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		s.refreshGlobal(ctx, gTok, !messaging, scope, sTok)
		return nil
	})
	if messaging {
		g.Go(func() error {
			s.refreshScoped(sctx, scancel, sTok, scope)
			return nil
		})
	}
	_ = g.Wait()
	s.publish()
}

func (s *Shell) refreshGlobal(ctx context.Context, tok uint64, deriveScoped bool, scope conversation.Scope, sTok uint64) {
	in, err := s.fetchAll(ctx)

	s.mu.Lock()
	if tok != s.tokens[globalSlot] {
		s.mu.Unlock()
		s.logger.Debug("drop stale global list", zap.Uint64("token", tok))
		return
	}
	if err != nil {
		s.global = []conversation.Conversation{}
	} else {
		s.global = s.memo.Compute(in, conversation.Global())
	}
	if deriveScoped && sTok == s.tokens[scopedSlot] {
		if err != nil {
			s.setScopedLocked(scope, []conversation.Conversation{})
		} else {
			s.setScopedLocked(scope, s.memo.Compute(in, scope))
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.toastError("Could not load conversations", err)
	}
}

func (s *Shell) refreshScoped(ctx context.Context, cancel context.CancelFunc, tok uint64, scope conversation.Scope) {
	in, err := s.fetchScope(ctx, scope)
	cancel()

	s.mu.Lock()
	if s.cancelTok == tok {
		s.cancelScoped = nil
	}
	if tok != s.tokens[scopedSlot] {
		s.mu.Unlock()
		s.logger.Debug("drop stale scoped list", zap.Stringer("scope", scope), zap.Uint64("token", tok))
		return
	}
	if err != nil {
		s.setScopedLocked(scope, []conversation.Conversation{})
	} else {
		s.setScopedLocked(scope, s.memo.Compute(in, scope))
	}
	s.mu.Unlock()

	if err != nil {
		s.toastError("Could not load inbox conversations", err)
	}
}

func (s *Shell) fetchAll(ctx context.Context) (conversation.Input, error) {
	in := conversation.Input{Inboxes: s.registry.List()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		patients, err := s.store.ListPatients(gctx)
		if err != nil {
			return fmt.Errorf("list patients: %w", err)
		}
		in.Patients = patients
		return nil
	})
	g.Go(func() error {
		msgs, err := s.store.MessagesByPatient(gctx)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		in.Messages = msgs
		return nil
	})
	return in, g.Wait()
}

// fetchScope loads only the messages the scope can match.
func (s *Shell) fetchScope(ctx context.Context, scope conversation.Scope) (conversation.Input, error) {
	if scope.IsGlobal() {
		return s.fetchAll(ctx)
	}
	inboxes := s.registry.List()
	in := conversation.Input{Inboxes: inboxes, Messages: map[int64][]store.Message{}}
	filter, ok := filterFor(inboxes, scope)
	if !ok {
		return in, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		patients, err := s.store.ListPatients(gctx)
		if err != nil {
			return fmt.Errorf("list patients: %w", err)
		}
		in.Patients = patients
		return nil
	})
	var msgs []store.Message
	g.Go(func() error {
		var err error
		msgs, err = s.store.ListMessages(gctx, filter)
		if err != nil {
			return fmt.Errorf("list inbox messages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return in, err
	}
	for _, m := range msgs {
		in.Messages[m.PatientID] = append(in.Messages[m.PatientID], m)
	}
	return in, nil
}

func filterFor(inboxes []store.Inbox, scope conversation.Scope) (store.MessageFilter, bool) {
	for _, ib := range inboxes {
		if ib.ID != scope.InboxID() {
			continue
		}
		p, ok := inbox.EffectivePrimary(inboxes)
		return store.MessageFilter{InboxAddress: ib.PhoneAddress, IncludeLegacy: ok && p.ID == ib.ID}, true
	}
	return store.MessageFilter{}, false
}

// CurrentInbox returns the selected inbox ID, or zero.
func (s *Shell) CurrentInbox() int64 {
	if ib, ok := s.registry.Selected(); ok {
		return ib.ID
	}
	return 0
}

// SwitchInbox selects an inbox. Any in-flight scoped fetch for the previous
// inbox is cancelled and its result ignored. The scoped list reads empty
// until the new inbox's fetch lands.
func (s *Shell) SwitchInbox(ctx context.Context, id int64) error {
	if err := s.registry.Select(id); err != nil {
		s.toastError("Could not switch inbox", err)
		return err
	}
	s.mu.Lock()
	s.nextLocked(scopedSlot)
	if s.cancelScoped != nil {
		s.cancelScoped()
		s.cancelScoped = nil
	}
	s.scoped = []conversation.Conversation{}
	s.scopedFor = s.scopeLocked()
	s.mu.Unlock()
	s.logger.Info("inbox switched", zap.Int64("inbox", id))
	s.publish()
	s.Recompute(ctx)
	return nil
}

// CycleInbox moves the selection delta steps through the inbox list.
func (s *Shell) CycleInbox(ctx context.Context, delta int) error {
	inboxes := s.registry.List()
	if len(inboxes) == 0 {
		return nil
	}
	idx := 0
	current := s.CurrentInbox()
	for i, ib := range inboxes {
		if ib.ID == current {
			idx = i
			break
		}
	}
	idx = ((idx+delta)%len(inboxes) + len(inboxes)) % len(inboxes)
	return s.SwitchInbox(ctx, inboxes[idx].ID)
}

// SwitchScreen changes the active screen. Entering messaging fetches the
// scoped list.
func (s *Shell) SwitchScreen(ctx context.Context, screen badge.Screen) {
	s.mu.Lock()
	changed := s.screen != screen
	s.screen = screen
	s.mu.Unlock()
	if !changed {
		return
	}
	s.logger.Debug("screen switched", zap.String("screen", string(screen)))
	if screen == badge.Messaging {
		s.Recompute(ctx)
		return
	}
	s.publish()
}

// SelectConversation selects a patient and marks their unread inbound
// messages read. On the messaging screen only messages of the selected
// inbox are marked.
func (s *Shell) SelectConversation(ctx context.Context, patientID int64) error {
	s.mu.Lock()
	s.patient = patientID
	scope := conversation.Global()
	if s.screen == badge.Messaging {
		scope = s.scopeLocked()
	}
	s.mu.Unlock()

	msgs, err := s.store.ListMessages(ctx, store.MessageFilter{PatientID: patientID})
	if err != nil {
		s.toastError("Could not open conversation", err)
		s.publish()
		return fmt.Errorf("list messages for patient %d: %w", patientID, err)
	}
	inboxes := s.registry.List()
	var ids []int64
	for i := range msgs {
		if msgs[i].Unread() && conversation.Matches(inboxes, scope, &msgs[i]) {
			ids = append(ids, msgs[i].ID)
		}
	}
	if len(ids) > 0 {
		if err := s.store.MarkRead(ctx, ids); err != nil {
			s.toastError("Could not mark messages read", err)
			s.publish()
			return fmt.Errorf("mark read: %w", err)
		}
		s.logger.Debug("marked read", zap.Int64("patient", patientID), zap.Int("messages", len(ids)))
	}
	s.Recompute(ctx)
	return nil
}

// Snapshot returns the current state.
func (s *Shell) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Shell) snapshotLocked() Snapshot {
	snap := Snapshot{
		Screen:          s.screen,
		Inboxes:         s.registry.List(),
		SelectedPatient: s.patient,
		Global:          append([]conversation.Conversation(nil), s.global...),
		Scope:           s.scopeLocked(),
	}
	// A list computed for another inbox never shows under this one.
	var scoped []conversation.Conversation
	if s.scopedFor == snap.Scope {
		scoped = s.scoped
	}
	snap.Scoped = append([]conversation.Conversation{}, scoped...)
	snap.ScopedUnread = conversation.TotalUnread(scoped)
	label := ""
	if ib, ok := s.registry.Selected(); ok {
		snap.Inbox = &ib
		label = ib.Label()
	}
	snap.Badge = badge.Calculate(badge.Input{
		Screen:     s.screen,
		Global:     s.global,
		Scoped:     scoped,
		InboxLabel: label,
		Cap:        s.badgeCap,
	})
	return snap
}

// scopeLocked is the scope of the scoped list: the selected inbox, or
// global when none is selected.
func (s *Shell) scopeLocked() conversation.Scope {
	if ib, ok := s.registry.Selected(); ok {
		return conversation.InboxScope(ib.ID)
	}
	return conversation.Global()
}

func (s *Shell) nextLocked(sl slot) uint64 {
	s.tokens[sl]++
	return s.tokens[sl]
}

func (s *Shell) scopedContextLocked(parent context.Context, tok uint64) (context.Context, context.CancelFunc) {
	if s.cancelScoped != nil {
		s.cancelScoped()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelScoped = cancel
	s.cancelTok = tok
	return ctx, cancel
}

// setScopedLocked stores a scoped list unless the selection moved on.
func (s *Shell) setScopedLocked(scope conversation.Scope, convs []conversation.Conversation) {
	if scope != s.scopeLocked() {
		s.logger.Debug("drop scoped list for previous inbox", zap.Stringer("scope", scope))
		return
	}
	s.scoped = convs
	s.scopedFor = scope
}

func (s *Shell) publish() {
	snap := s.Snapshot()
	if s.bus != nil {
		s.bus.Publish(bus.NewEvent(bus.KindShellUpdated, snap))
	}
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *Shell) toastError(title string, err error) {
	s.logger.Warn(title, zap.Error(err))
	if s.toaster != nil {
		s.toaster.Toast(notify.Toast{ID: uuid.NewString(), Level: notify.LevelError, Title: title, Body: err.Error()})
	}
}
