package wa

import (
	"context"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// Identity is the linked device as seen by the event handler.
type Identity interface {
	InboxAddress() string
	ResolveLID(ctx context.Context, jid types.JID) types.JID
}

// EventHandler processes whatsmeow events, drives the connection machine
// and publishes normalized messages on the bus. Ingestion subscribes to the
// bus on its own.
type EventHandler struct {
	bus      *bus.Bus
	machine  *status.Machine
	identity Identity
	logger   *zap.Logger
}

// NewEventHandler creates a handler. identity may be nil, in which case
// messages carry no inbox address and LIDs are left unresolved.
func NewEventHandler(b *bus.Bus, machine *status.Machine, identity Identity, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{bus: b, machine: machine, identity: identity, logger: logger}
}

// Handle is the whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected", zap.String("inbox", h.inbox()))
		h.transition(Connected, "")
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		h.transition(Disconnected, "")
	case *events.StreamReplaced:
		h.logger.Warn("WhatsApp stream replaced by another client")
		h.transition(Disconnected, "stream replaced")
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.transition(LoggedOut, evt.Reason.String())
	case *events.PairSuccess:
		h.logger.Info("WhatsApp paired", zap.String("jid", evt.ID.ToNonAD().String()))
	}
}

func (h *EventHandler) transition(to status.State, reason string) {
	if h.machine.Current() == to {
		return
	}
	if err := h.machine.TransitionWithReason(to, reason); err != nil {
		h.logger.Debug("ignoring connection transition", zap.Error(err))
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	resolved := *evt
	resolved.Info.Chat = h.resolveJID(evt.Info.Chat)

	ev, ok := ParseLiveMessage(&resolved, h.inbox())
	if !ok {
		h.logger.Debug("skipping message",
			zap.String("chat", evt.Info.Chat.String()), zap.String("msg_id", evt.Info.ID))
		return
	}
	h.bus.Publish(bus.NewEvent(bus.KindWAMessage, ev))
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	batch := ParseHistory(evt.Data, h.inbox(), h.resolveJID)
	if len(batch) == 0 {
		return
	}
	h.logger.Info("history sync batch", zap.Int("messages", len(batch)))
	h.bus.Publish(bus.NewEvent(bus.KindWAHistoryBatch, batch))
}

func (h *EventHandler) inbox() string {
	if h.identity == nil {
		return ""
	}
	return h.identity.InboxAddress()
}

// resolveJID strips the device suffix and maps LIDs to phone numbers when
// the device store knows the mapping.
func (h *EventHandler) resolveJID(jid types.JID) types.JID {
	jid = jid.ToNonAD()
	if h.identity == nil {
		return jid
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.identity.ResolveLID(ctx, jid).ToNonAD()
}
