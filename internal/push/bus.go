package push

import (
	"context"
	"sync"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

// BusSource streams message.inserted events published in-process by the
// ingestion engine.
type BusSource struct {
	Bus *bus.Bus
}

// NewBusSource creates a source over b.
func NewBusSource(b *bus.Bus) *BusSource {
	return &BusSource{Bus: b}
}

// Subscribe implements Source.
func (s *BusSource) Subscribe(ctx context.Context, onInsert func(store.Message)) (Subscription, error) {
	ch, release := s.Bus.Subscribe("message.", 256)
	ctx, cancel := context.WithCancel(ctx)
	sub := &busSub{cancel: cancel, release: release, errc: make(chan error)}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-ch:
				if evt.Kind != bus.KindMessageInserted {
					continue
				}
				m, ok := evt.Payload.(store.Message)
				if !ok {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				onInsert(m)
			}
		}
	}()
	return sub, nil
}

type busSub struct {
	once    sync.Once
	cancel  context.CancelFunc
	release func()
	errc    chan error
}

func (s *busSub) Unsubscribe() {
	s.once.Do(func() {
		s.release()
		s.cancel()
	})
}

// Err never fires; the in-process bus cannot drop.
func (s *busSub) Err() <-chan error { return s.errc }
