package daemon

import (
	"context"
	"sync"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/live"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/wa"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health service names reported on the engine socket. The empty name is
// the engine as a whole.
const (
	LiveService     = "medconnect.live"
	WhatsAppService = "medconnect.whatsapp"
)

// servingStatus maps a component state to a health status. The live
// service serves only while subscribed, WhatsApp only while connected.
func servingStatus(service string, state status.State) healthpb.HealthCheckResponse_ServingStatus {
	switch {
	case service == LiveService && state == live.Subscribed,
		service == WhatsAppService && state == wa.Connected:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// healthReporter mirrors live and WhatsApp state changes into the health
// server.
type healthReporter struct {
	hs       *health.Server
	bus      *bus.Bus
	whatsapp bool
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func newHealthReporter(hs *health.Server, b *bus.Bus, whatsapp bool, logger *zap.Logger) *healthReporter {
	r := &healthReporter{hs: hs, bus: b, whatsapp: whatsapp, logger: logger}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(LiveService, healthpb.HealthCheckResponse_NOT_SERVING)
	if whatsapp {
		hs.SetServingStatus(WhatsAppService, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return r
}

// Start follows state changes until ctx is done.
func (r *healthReporter) Start(ctx context.Context) {
	liveCh, releaseLive := r.bus.Subscribe(bus.KindLiveStatus, 16)
	waCh, releaseWA := r.bus.Subscribe(bus.KindWAConnection, 16)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer releaseLive()
		defer releaseWA()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-liveCh:
				r.apply(LiveService, evt)
			case evt := <-waCh:
				if r.whatsapp {
					r.apply(WhatsAppService, evt)
				}
			}
		}
	}()
}

// Wait blocks until the reporter goroutine has exited.
func (r *healthReporter) Wait() {
	r.wg.Wait()
}

func (r *healthReporter) apply(service string, evt bus.Event) {
	change, ok := evt.Payload.(status.Change)
	if !ok {
		return
	}
	st := servingStatus(service, change.To)
	r.hs.SetServingStatus(service, st)
	r.logger.Debug("health status",
		zap.String("service", service),
		zap.String("state", string(change.To)),
		zap.String("status", st.String()))
}

// batchRelay turns finished ingestion batches into shell recomputes.
// Batches never notify; they only refresh the lists.
type batchRelay struct {
	bus        *bus.Bus
	recomputer live.Recomputer
	wg         sync.WaitGroup
}

func newBatchRelay(b *bus.Bus, r live.Recomputer) *batchRelay {
	return &batchRelay{bus: b, recomputer: r}
}

func (r *batchRelay) Start(ctx context.Context) {
	ch, release := r.bus.Subscribe(bus.KindIngestBatch, 16)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer release()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				r.recomputer.RequestRecompute()
			}
		}
	}()
}

func (r *batchRelay) Wait() {
	r.wg.Wait()
}
