// Package live reacts to messages created elsewhere: it notifies about
// inbound ones and asks the shell to recompute conversation lists.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/push"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.uber.org/zap"
)

// Listener states.
const (
	Idle         status.State = "IDLE"
	Subscribing  status.State = "SUBSCRIBING"
	Subscribed   status.State = "SUBSCRIBED"
	Reconnecting status.State = "RECONNECTING"
	TimedOut     status.State = "TIMED_OUT"
	Error        status.State = "ERROR"
)

// Transitions is the listener lifecycle.
var Transitions = status.Transitions{
	Idle:         {Subscribing},
	Subscribing:  {Subscribed, Error, Idle},
	Subscribed:   {TimedOut, Error, Idle},
	TimedOut:     {Reconnecting, Subscribing, Idle},
	Error:        {Reconnecting, Subscribing, Idle},
	Reconnecting: {Subscribing, Idle},
}

// UnknownPatient names the sender when the patient record cannot be loaded.
const UnknownPatient = "Unknown patient"

const lookupTimeout = 2 * time.Second

// seenLimit bounds how many message IDs a subscription remembers for
// duplicate detection.
const seenLimit = 512

// PatientLookup finds the patient owning a message.
type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*store.Patient, error)
}

// InboxResolver maps a recorded inbox address to a configured inbox.
type InboxResolver interface {
	ByAddress(addr string) (store.Inbox, bool)
}

// Notifier receives inbound message notifications.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// Recomputer is asked to refresh visible conversation lists. It must not
// block.
type Recomputer interface {
	RequestRecompute()
}

// Policy controls reconnection after the stream drops. Without Auto the
// listener stays in its failure state until Resubscribe.
// MaxAttempts of 0 retries forever.
type Policy struct {
	Auto           bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// Backoff returns the wait before the given reconnect attempt (1-based):
// InitialBackoff doubled per attempt, capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		d = time.Second
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = 30 * time.Second
	}
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// Options wires a Listener.
type Options struct {
	Source     push.Source
	Patients   PatientLookup
	Inboxes    InboxResolver
	Notifier   Notifier
	Recomputer Recomputer
	Policy     Policy
	Bus        *bus.Bus
	Logger     *zap.Logger
}

// Listener owns one push subscription at a time.
type Listener struct {
	opts    Options
	logger  *zap.Logger
	machine *status.Machine
	resub   chan struct{}

	mu     sync.Mutex
	sub    push.Subscription
	cancel context.CancelFunc
	hwm    int64
	floor  int64
	seen   map[int64]struct{}
	order  []int64
	wg     sync.WaitGroup
}

// NewListener creates an idle listener.
func NewListener(opts Options) *Listener {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		opts:    opts,
		logger:  logger,
		machine: status.NewMachine(bus.KindLiveStatus, Idle, Transitions, opts.Bus),
		resub:   make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (l *Listener) State() status.State {
	return l.machine.Current()
}

// Since returns when the current state was entered.
func (l *Listener) Since() time.Time {
	return l.machine.Since()
}

// HighWaterMark returns the highest message ID handled so far.
func (l *Listener) HighWaterMark() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hwm
}

// Start subscribes and supervises the subscription until Stop. The error
// of the first attempt is returned, but the listener keeps running and
// follows the reconnect policy.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return errors.New("live listener already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	err := l.subscribe(runCtx)
	go l.supervise(runCtx, err == nil)
	return err
}

// Stop releases the subscription and returns to Idle. Calling Stop more
// than once, or before Start, is a no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()

	l.release()
	if l.machine.Current() != Idle {
		if err := l.machine.TransitionWithReason(Idle, "stopped"); err != nil {
			l.logger.Warn("live stop transition", zap.Error(err))
		}
	}
	l.logger.Info("live listener stopped")
}

// Resubscribe asks a failed listener to subscribe again now, skipping any
// pending backoff. It does nothing unless the stream has failed.
func (l *Listener) Resubscribe() {
	switch l.machine.Current() {
	case TimedOut, Error, Reconnecting:
	default:
		return
	}
	select {
	case l.resub <- struct{}{}:
	default:
	}
}

func (l *Listener) supervise(ctx context.Context, subscribed bool) {
	defer l.wg.Done()
	attempt := 0
	for {
		if subscribed {
			attempt = 0
			errc := l.errc()
			select {
			case <-ctx.Done():
				return
			case err := <-errc:
				l.dropped(err)
			}
		}

		if !l.wait(ctx, &attempt) {
			return
		}
		subscribed = l.subscribe(ctx) == nil
	}
}

// wait blocks until the next subscribe attempt is due. It reports false
// when the listener is stopping.
func (l *Listener) wait(ctx context.Context, attempt *int) bool {
	p := l.opts.Policy
	if !p.Auto || (p.MaxAttempts > 0 && *attempt >= p.MaxAttempts) {
		if p.Auto {
			l.logger.Warn("live reconnect attempts exhausted", zap.Int("attempts", *attempt))
		}
		select {
		case <-ctx.Done():
			return false
		case <-l.resub:
			*attempt = 0
			return true
		}
	}

	*attempt++
	delay := p.Backoff(*attempt)
	if err := l.machine.TransitionWithReason(Reconnecting, delay.String()); err != nil {
		l.logger.Warn("live reconnect transition", zap.Error(err))
	}
	l.logger.Info("live reconnecting", zap.Int("attempt", *attempt), zap.Duration("backoff", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-l.resub:
	}
	return true
}

func (l *Listener) subscribe(ctx context.Context) error {
	if err := l.machine.Transition(Subscribing); err != nil {
		return err
	}
	l.mu.Lock()
	l.floor = l.hwm
	l.seen = make(map[int64]struct{})
	l.order = l.order[:0]
	l.mu.Unlock()

	sub, err := l.opts.Source.Subscribe(ctx, l.handle)
	if err != nil {
		l.logger.Warn("live subscribe failed", zap.Error(err))
		if terr := l.machine.TransitionWithReason(Error, err.Error()); terr != nil {
			l.logger.Warn("live error transition", zap.Error(terr))
		}
		return err
	}

	l.mu.Lock()
	l.sub = sub
	l.mu.Unlock()

	if err := l.machine.Transition(Subscribed); err != nil {
		return err
	}
	select {
	case <-l.resub:
	default:
	}
	l.logger.Info("live subscribed")
	return nil
}

func (l *Listener) errc() <-chan error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		return nil
	}
	return l.sub.Err()
}

func (l *Listener) dropped(err error) {
	l.release()
	to := Error
	if errors.Is(err, push.ErrPingTimeout) {
		to = TimedOut
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	l.logger.Warn("live stream dropped", zap.String("state", string(to)), zap.Error(err))
	if terr := l.machine.TransitionWithReason(to, reason); terr != nil {
		l.logger.Warn("live drop transition", zap.Error(terr))
	}
}

func (l *Listener) release() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// handle processes one inserted message. Messages at or below the high
// water mark taken when the subscription started were handled by an
// earlier subscription. Within a subscription only repeated IDs are
// skipped, so out-of-order deliveries still notify.
func (l *Listener) handle(m store.Message) {
	l.mu.Lock()
	if m.ID <= l.floor {
		l.mu.Unlock()
		l.logger.Debug("live skip replayed message", zap.Int64("message", m.ID))
		return
	}
	if _, dup := l.seen[m.ID]; dup {
		l.mu.Unlock()
		l.logger.Debug("live skip duplicate message", zap.Int64("message", m.ID))
		return
	}
	l.rememberLocked(m.ID)
	l.hwm = max(l.hwm, m.ID)
	l.mu.Unlock()

	if m.Direction == store.Inbound {
		l.notifyInbound(m)
	}
	if l.opts.Recomputer != nil {
		l.opts.Recomputer.RequestRecompute()
	}
}

func (l *Listener) rememberLocked(id int64) {
	if l.seen == nil {
		l.seen = make(map[int64]struct{})
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
	if len(l.order) > seenLimit {
		delete(l.seen, l.order[0])
		l.order = l.order[1:]
	}
}

func (l *Listener) notifyInbound(m store.Message) {
	if l.opts.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	n := notify.Notification{PatientID: m.PatientID, PatientName: UnknownPatient, Body: m.Body}
	if l.opts.Patients != nil {
		p, err := l.opts.Patients.GetPatient(ctx, m.PatientID)
		switch {
		case err != nil:
			l.logger.Warn("live patient lookup failed", zap.Int64("patient", m.PatientID), zap.Error(err))
		case p != nil:
			n.PatientName = p.Name
		}
	}
	if l.opts.Inboxes != nil {
		if ib, ok := l.opts.Inboxes.ByAddress(m.InboxAddress); ok {
			n.Inbox = &ib
		}
	}
	l.opts.Notifier.Notify(ctx, n)
}
