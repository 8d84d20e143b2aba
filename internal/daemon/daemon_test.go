package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"github.com/sumithjoshi99/medconnect/internal/ingest"
	"github.com/sumithjoshi99/medconnect/internal/live"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/shell"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// shortTempDir keeps Unix socket paths under the 104-char macOS limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "mc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func healthClient(t *testing.T, socketPath string) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func waitServing(t *testing.T, client healthpb.HealthClient, service string, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last healthpb.HealthCheckResponse_ServingStatus
	for time.Now().Before(deadline) {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err == nil {
			last = resp.Status
			if last == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("health(%q) = %v, want %v", service, last, want)
}

func TestServingStatus(t *testing.T) {
	tests := []struct {
		service string
		state   status.State
		want    healthpb.HealthCheckResponse_ServingStatus
	}{
		{LiveService, live.Subscribed, healthpb.HealthCheckResponse_SERVING},
		{LiveService, live.Subscribing, healthpb.HealthCheckResponse_NOT_SERVING},
		{LiveService, live.TimedOut, healthpb.HealthCheckResponse_NOT_SERVING},
		{LiveService, live.Reconnecting, healthpb.HealthCheckResponse_NOT_SERVING},
		{WhatsAppService, wa.Connected, healthpb.HealthCheckResponse_SERVING},
		{WhatsAppService, wa.LoggedOut, healthpb.HealthCheckResponse_NOT_SERVING},
		{WhatsAppService, live.Subscribed, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		if got := servingStatus(tt.service, tt.state); got != tt.want {
			t.Errorf("servingStatus(%s, %s) = %v, want %v", tt.service, tt.state, got, tt.want)
		}
	}
}

func TestHealthReporterMirrorsLiveState(t *testing.T) {
	b := bus.New()
	hs := health.NewServer()
	r := newHealthReporter(hs, b, false, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer func() {
		cancel()
		r.Wait()
	}()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
		}
		return resp.Status
	}

	if got := check(LiveService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial live status = %v, want NOT_SERVING", got)
	}
	if got := check(WhatsAppService); got != healthpb.HealthCheckResponse_SERVICE_UNKNOWN {
		t.Errorf("disabled WhatsApp should not be registered, got %v", got)
	}

	b.Publish(bus.NewEvent(bus.KindLiveStatus, status.Change{From: live.Subscribing, To: live.Subscribed}))
	deadline := time.Now().Add(time.Second)
	for check(LiveService) != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("live status never became SERVING")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(bus.NewEvent(bus.KindLiveStatus, status.Change{From: live.Subscribed, To: live.TimedOut}))
	deadline = time.Now().Add(time.Second)
	for check(LiveService) != healthpb.HealthCheckResponse_NOT_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("live status never went back to NOT_SERVING")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type countingRecomputer struct{ ch chan struct{} }

func (c *countingRecomputer) RequestRecompute() { c.ch <- struct{}{} }

func TestBatchRelay(t *testing.T) {
	b := bus.New()
	rc := &countingRecomputer{ch: make(chan struct{}, 4)}
	relay := newBatchRelay(b, rc)

	ctx, cancel := context.WithCancel(context.Background())
	relay.Start(ctx)

	b.Publish(bus.NewEvent(bus.KindIngestBatch, ingest.BatchResult{Received: 3, Inserted: 2}))
	select {
	case <-rc.ch:
	case <-time.After(time.Second):
		t.Fatal("ingest.batch did not request a recompute")
	}

	cancel()
	relay.Wait()
	if b.Subscribers() != 0 {
		t.Errorf("relay left %d subscriptions", b.Subscribers())
	}
}

func TestEngineLifecycle(t *testing.T) {
	dir := shortTempDir(t)
	cfgPath := filepath.Join(dir, "config.toml")
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Notifications.Sound = false
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatal(err)
	}
	socketPath := filepath.Join(dir, "e.sock")

	var (
		db       *store.DB
		sh       *shell.Shell
		listener *live.Listener
		b        *bus.Bus
	)
	app := fx.New(
		Module(Params{ConfigPath: cfgPath, SocketPath: socketPath, FileLogOnly: true}),
		fx.Populate(&db, &sh, &listener, &b),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = app.Stop(ctx)
		}
	}()

	if listener.State() != live.Subscribed {
		t.Fatalf("listener state = %s, want SUBSCRIBED", listener.State())
	}
	client := healthClient(t, socketPath)
	waitServing(t, client, "", healthpb.HealthCheckResponse_SERVING)
	waitServing(t, client, LiveService, healthpb.HealthCheckResponse_SERVING)

	if _, err := db.UpsertPatient(ctx, &store.Patient{Name: "Jane Doe", Phone: "+15550001111"}); err != nil {
		t.Fatal(err)
	}

	toasts, release := b.Subscribe(bus.KindNotifyToast, 10)
	defer release()

	// A bridged message flows through ingestion, the live listener and
	// the dispatcher, and ends up unread on the dashboard.
	b.Publish(bus.NewEvent(bus.KindWAMessage, ingest.Event{
		Channel:      "whatsapp",
		ExternalID:   "wa-1",
		PatientPhone: "+15550001111",
		InboxAddress: "+19145550001",
		Direction:    store.Inbound,
		Body:         "Running late",
		Timestamp:    time.Now().UnixMilli(),
	}))

	select {
	case evt := <-toasts:
		toast := evt.Payload.(notify.Toast)
		if toast.Title != "Jane Doe (All locations)" {
			t.Errorf("toast title = %q", toast.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no toast for inbound message")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sh.Snapshot().Badge.Count != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("badge = %+v, want 1 unread", sh.Snapshot().Badge)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	stopped = true

	if listener.State() != live.Idle {
		t.Errorf("listener state after stop = %s, want IDLE", listener.State())
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file should be removed on stop")
	}
}

func TestSecondEngineRefusesDataDir(t *testing.T) {
	dir := shortTempDir(t)
	cfgPath := filepath.Join(dir, "config.toml")
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatal(err)
	}

	first := fx.New(Module(Params{ConfigPath: cfgPath, SocketPath: filepath.Join(dir, "a.sock"), FileLogOnly: true}), fx.NopLogger)
	if err := first.Err(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Stop(context.Background()) }()

	second := fx.New(Module(Params{ConfigPath: cfgPath, SocketPath: filepath.Join(dir, "b.sock"), FileLogOnly: true}), fx.NopLogger)
	if second.Err() == nil {
		t.Fatal("second engine on the same data dir should fail to build")
	}
}
