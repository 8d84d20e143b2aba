// Package ingest turns provider message events into stored messages.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.uber.org/zap"
)

// Event is a message reported by a provider (WhatsApp bridge, SMS webhook).
// PatientPhone is the counterparty; InboxAddress is our number.
type Event struct {
	Channel      string
	ExternalID   string
	PatientPhone string
	InboxAddress string
	Direction    store.Direction
	Body         string
	Timestamp    int64
}

// BatchResult is published as ingest.batch after a history batch.
type BatchResult struct {
	Received int
	Inserted int
	Skipped  int
}

// Store is what ingestion writes through.
type Store interface {
	FindPatientByPhone(ctx context.Context, phone string) (*store.Patient, error)
	InsertMessage(ctx context.Context, m *store.Message) (bool, error)
	InsertMessages(ctx context.Context, msgs []*store.Message) (int, error)
}

// Engine handles idempotent ingestion of messages into the store.
// It subscribes to "wa." events on the bus and processes them.
type Engine struct {
	db     Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new ingestion engine.
func NewEngine(db Store, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, bus: b, logger: logger}
}

// Start subscribes to WhatsApp events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindWAMessage:
		ev, ok := evt.Payload.(Event)
		if !ok {
			return
		}
		if _, err := e.Ingest(ctx, ev); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("external_id", ev.ExternalID))
		}
	case bus.KindWAHistoryBatch:
		evs, ok := evt.Payload.([]Event)
		if !ok {
			return
		}
		res, err := e.IngestBatch(ctx, evs)
		if err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(evs)))
			return
		}
		e.logger.Info("history batch ingested",
			zap.Int("received", res.Received),
			zap.Int("inserted", res.Inserted),
			zap.Int("skipped", res.Skipped))
	}
}

// Ingest stores one event and publishes message.inserted when the row is
// new. Events from unknown phones are skipped and return false.
func (e *Engine) Ingest(ctx context.Context, ev Event) (bool, error) {
	m, err := e.resolve(ctx, ev)
	if err != nil || m == nil {
		return false, err
	}
	inserted, err := e.db.InsertMessage(ctx, m)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	if !inserted {
		e.logger.Debug("duplicate message ignored", zap.String("external_id", ev.ExternalID))
		return false, nil
	}
	e.bus.Publish(bus.NewEvent(bus.KindMessageInserted, *m))
	return true, nil
}

// IngestBatch stores history in one transaction. History is not announced
// message by message; a single ingest.batch event is published instead.
func (e *Engine) IngestBatch(ctx context.Context, evs []Event) (BatchResult, error) {
	res := BatchResult{Received: len(evs)}
	msgs := make([]*store.Message, 0, len(evs))
	for _, ev := range evs {
		m, err := e.resolve(ctx, ev)
		if err != nil {
			return res, err
		}
		if m == nil {
			res.Skipped++
			continue
		}
		msgs = append(msgs, m)
	}
	n, err := e.db.InsertMessages(ctx, msgs)
	if err != nil {
		return res, fmt.Errorf("insert history: %w", err)
	}
	res.Inserted = n
	e.bus.Publish(bus.NewEvent(bus.KindIngestBatch, res))
	return res, nil
}

// resolve maps an event onto its patient. A nil message means the sender
// is not a known patient.
func (e *Engine) resolve(ctx context.Context, ev Event) (*store.Message, error) {
	phone := NormalizePhone(ev.PatientPhone)
	p, err := e.db.FindPatientByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find patient %s: %w", phone, err)
	}
	if p == nil {
		e.logger.Info("message from unknown patient skipped", zap.String("phone", phone))
		return nil, nil
	}
	return &store.Message{
		PatientID:    p.ID,
		Direction:    ev.Direction,
		Body:         ev.Body,
		Channel:      ev.Channel,
		InboxAddress: NormalizePhone(ev.InboxAddress),
		ExternalID:   ev.ExternalID,
		CreatedAt:    ev.Timestamp,
	}, nil
}

// NormalizePhone reduces a phone number to "+" and its digits. An input
// without digits yields "".
func NormalizePhone(s string) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}
