package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.uber.org/zap"
)

// DefaultPingTimeout is how long the stream may stay silent, heartbeats
// included, before it is considered dead.
const DefaultPingTimeout = 15 * time.Second

const maxReadSize = 1 << 20

// frame is one realtime JSON frame.
type frame struct {
	Type   string          `json:"type"`
	Table  string          `json:"table,omitempty"`
	Event  string          `json:"event,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// record is the wire shape of a messages row.
type record struct {
	ID           int64   `json:"id"`
	PatientID    int64   `json:"patient_id"`
	Direction    string  `json:"direction"`
	Body         string  `json:"body"`
	Channel      string  `json:"channel"`
	InboxAddress *string `json:"inbox_address"`
	Read         *bool   `json:"read"`
	ExternalID   *string `json:"external_id"`
	CreatedAt    int64   `json:"created_at"`
}

func (r record) message() store.Message {
	m := store.Message{
		ID:        r.ID,
		PatientID: r.PatientID,
		Direction: store.Direction(r.Direction),
		Body:      r.Body,
		Channel:   r.Channel,
		Read:      r.Read,
		CreatedAt: r.CreatedAt,
	}
	if r.InboxAddress != nil {
		m.InboxAddress = *r.InboxAddress
	}
	if r.ExternalID != nil {
		m.ExternalID = *r.ExternalID
	}
	return m
}

// WebSocketSource subscribes to INSERT events on the messages table of a
// realtime endpoint.
type WebSocketSource struct {
	URL         string
	Token       string
	PingTimeout time.Duration
	Logger      *zap.Logger
}

// Subscribe dials the endpoint, subscribes to message inserts and waits for
// the server to confirm. The dial and the handshake together must finish
// within the ping timeout; a silent server fails with ErrPingTimeout.
func (s *WebSocketSource) Subscribe(ctx context.Context, onInsert func(store.Message)) (Subscription, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := s.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	opts := &websocket.DialOptions{}
	if s.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + s.Token}}
	}

	setupCtx, cancelSetup := context.WithTimeout(ctx, timeout)
	defer cancelSetup()

	conn, _, err := websocket.Dial(setupCtx, s.URL, opts)
	if err != nil {
		return nil, setupError(setupCtx, "dial", err)
	}
	conn.SetReadLimit(maxReadSize)

	if err := handshake(setupCtx, conn); err != nil {
		_ = conn.CloseNow()
		return nil, setupError(setupCtx, "subscribe", err)
	}

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &wsSub{conn: conn, cancel: cancel, errc: make(chan error, 1)}
	go sub.read(life, timeout, onInsert, logger)
	return sub, nil
}

// setupError reports a setup deadline as ErrPingTimeout so callers can tell
// a silent server from a refused one.
func setupError(ctx context.Context, stage string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", stage, ErrPingTimeout)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func handshake(ctx context.Context, conn *websocket.Conn) error {
	data, _ := json.Marshal(frame{Type: "subscribe", Table: "messages", Event: "INSERT"})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	for {
		_, resp, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read subscription response: %w", err)
		}
		var f frame
		if err := json.Unmarshal(resp, &f); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		switch f.Type {
		case "subscribed":
			return nil
		case "rejected":
			return fmt.Errorf("subscription rejected: %s", f.Reason)
		case "heartbeat", "welcome":
			continue
		default:
			return fmt.Errorf("unexpected response type: %q", f.Type)
		}
	}
}

type wsSub struct {
	once   sync.Once
	conn   *websocket.Conn
	cancel context.CancelFunc
	errc   chan error
}

func (s *wsSub) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "unsubscribe")
	})
}

func (s *wsSub) Err() <-chan error { return s.errc }

// read runs until the stream ends. Each read gets its own deadline so a
// half-open connection surfaces as ErrPingTimeout.
func (s *wsSub) read(ctx context.Context, timeout time.Duration, onInsert func(store.Message), logger *zap.Logger) {
	for {
		readCtx, readCancel := context.WithTimeout(ctx, timeout)
		_, data, err := s.conn.Read(readCtx)
		readCancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
				err = ErrPingTimeout
			}
			s.fail(err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Debug("skip malformed frame", zap.Error(err))
			continue
		}
		switch f.Type {
		case "heartbeat", "subscribed":
			continue
		case "disconnect":
			s.fail(fmt.Errorf("disconnect: %s", f.Reason))
			return
		case "INSERT":
			if f.Table != "messages" || len(f.Record) == 0 {
				continue
			}
			var r record
			if err := json.Unmarshal(f.Record, &r); err != nil {
				logger.Debug("skip malformed record", zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return
			}
			onInsert(r.message())
		}
	}
}

func (s *wsSub) fail(err error) {
	_ = s.conn.CloseNow()
	select {
	case s.errc <- err:
	default:
	}
}
