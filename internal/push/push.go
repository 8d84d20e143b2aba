// Package push delivers newly created messages to the live listener.
package push

import (
	"context"
	"errors"

	"github.com/sumithjoshi99/medconnect/internal/store"
)

// ErrPingTimeout reports a stream that went silent for longer than the
// ping timeout.
var ErrPingTimeout = errors.New("ping timeout: no frames received")

// Subscription is an active stream. Unsubscribe stops delivery and may be
// called any number of times. Err yields at most one error when the stream
// drops on its own; it never fires after Unsubscribe.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Source opens message-insert streams. onInsert is called sequentially,
// only for rows created after Subscribe returned.
type Source interface {
	Subscribe(ctx context.Context, onInsert func(store.Message)) (Subscription, error)
}
