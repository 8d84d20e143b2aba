package wa

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.mau.fi/whatsmeow"
)

type fakeDevice struct {
	fakeIdentity
	loggedIn   bool
	connectErr error
	qr         chan whatsmeow.QRChannelItem

	mu        sync.Mutex
	connects  int
	handler   whatsmeow.EventHandler
	connected chan struct{}
}

func newFakeDevice(address string, loggedIn bool) *fakeDevice {
	return &fakeDevice{
		fakeIdentity: fakeIdentity{address: address},
		loggedIn:     loggedIn,
		qr:           make(chan whatsmeow.QRChannelItem, 4),
		connected:    make(chan struct{}, 1),
	}
}

func (d *fakeDevice) IsLoggedIn() bool { return d.loggedIn }

func (d *fakeDevice) Connect() error {
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	select {
	case d.connected <- struct{}{}:
	default:
	}
	return d.connectErr
}

func (d *fakeDevice) Disconnect() {}

func (d *fakeDevice) RegisterEventHandler(h whatsmeow.EventHandler) { d.handler = h }

func (d *fakeDevice) GetQRChannel(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if d.loggedIn {
		return nil, errors.New("already logged in")
	}
	return d.qr, nil
}

type fakeInboxes struct {
	mu    sync.Mutex
	known map[string]bool
}

func (f *fakeInboxes) EnsureInbox(_ context.Context, in *store.Inbox) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known == nil {
		f.known = map[string]bool{}
	}
	in.ID = int64(len(f.known) + 1)
	if f.known[in.PhoneAddress] {
		return false, nil
	}
	f.known[in.PhoneAddress] = true
	return true, nil
}

func TestBridgeStartUnpaired(t *testing.T) {
	dev := newFakeDevice("", false)
	br := NewBridge(dev, &fakeInboxes{}, bus.New(), nil)

	if err := br.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dev.connects != 0 {
		t.Error("an unpaired device must not connect")
	}
	if br.Machine().Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", br.Machine().Current())
	}
	if dev.handler == nil {
		t.Error("event handler not registered")
	}
}

func TestBridgeStartRegistersInboxOnce(t *testing.T) {
	dev := newFakeDevice(testInbox, true)
	inboxes := &fakeInboxes{}
	br := NewBridge(dev, inboxes, bus.New(), nil)

	registered := 0
	br.OnRegistered = func(context.Context) { registered++ }

	if err := br.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-dev.connected:
	case <-time.After(time.Second):
		t.Fatal("Connect not called")
	}
	if br.Machine().Current() != Connecting {
		t.Errorf("state = %s, want CONNECTING", br.Machine().Current())
	}
	if !inboxes.known[testInbox] || registered != 1 {
		t.Errorf("inbox registered=%v callbacks=%d", inboxes.known[testInbox], registered)
	}

	if _, err := br.Register(context.Background()); err != nil {
		t.Fatal(err)
	}
	if registered != 1 {
		t.Errorf("OnRegistered ran %d times, want 1 for a known inbox", registered)
	}
}

func TestBridgeConnectFailure(t *testing.T) {
	dev := newFakeDevice(testInbox, true)
	dev.connectErr = errors.New("dial failed")
	br := NewBridge(dev, &fakeInboxes{}, bus.New(), nil)

	if err := br.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for br.Machine().Current() != Disconnected {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want DISCONNECTED after failed connect", br.Machine().Current())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartQRAuthSuccess(t *testing.T) {
	dev := newFakeDevice(testInbox, false)
	inboxes := &fakeInboxes{}
	b := bus.New()
	br := NewBridge(dev, inboxes, b, nil)

	qrEvents, unsub := b.Subscribe("wa.qr", 10)
	defer unsub()

	ch, err := br.StartQRAuth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dev.qr <- whatsmeow.QRChannelItem{Event: "code", Code: "2@abc"}
	dev.qr <- whatsmeow.QRChannelItem{Event: "success"}
	close(dev.qr)

	var got []AuthEvent
	for evt := range ch {
		got = append(got, evt)
	}
	if len(got) != 2 {
		t.Fatalf("got %d auth events, want 2: %+v", len(got), got)
	}
	if got[0].Type != AuthEventQRCode || got[0].QRCode != "2@abc" || got[0].Done() {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Type != AuthEventAuthenticated || !got[1].Done() {
		t.Errorf("second = %+v", got[1])
	}
	if !inboxes.known[testInbox] {
		t.Error("paired number not registered as inbox")
	}
	if evt := waitEvent(t, qrEvents, bus.KindWAQR); evt.Payload.(AuthEvent).Type != AuthEventQRCode {
		t.Errorf("first wa.qr payload = %+v", evt.Payload)
	}
}

func TestStartQRAuthTimeout(t *testing.T) {
	dev := newFakeDevice("", false)
	br := NewBridge(dev, &fakeInboxes{}, bus.New(), nil)

	ch, err := br.StartQRAuth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dev.qr <- whatsmeow.QRChannelItem{Event: "timeout"}

	var last AuthEvent
	for evt := range ch {
		last = evt
	}
	if last.Type != AuthEventTimeout {
		t.Errorf("last = %+v, want timeout", last)
	}
	if br.Machine().Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", br.Machine().Current())
	}
}

func TestStartQRAuthAlreadyPaired(t *testing.T) {
	br := NewBridge(newFakeDevice(testInbox, true), &fakeInboxes{}, bus.New(), nil)
	if _, err := br.StartQRAuth(context.Background()); err == nil {
		t.Error("expected error for an already paired device")
	}
}
