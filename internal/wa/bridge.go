package wa

import (
	"context"
	"fmt"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/status"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// Device is the part of Adapter the bridge drives.
type Device interface {
	Identity
	IsLoggedIn() bool
	Connect() error
	Disconnect()
	RegisterEventHandler(handler whatsmeow.EventHandler)
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
}

// InboxStore records the linked number as an inbox.
type InboxStore interface {
	EnsureInbox(ctx context.Context, in *store.Inbox) (bool, error)
}

// Bridge connects a linked device, keeps its number registered as an inbox
// and tracks the connection state.
type Bridge struct {
	device  Device
	inboxes InboxStore
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	// OnRegistered runs after the linked number is inserted as a new inbox.
	OnRegistered func(ctx context.Context)
}

// NewBridge wires an event handler into device.
func NewBridge(device Device, inboxes InboxStore, b *bus.Bus, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	br := &Bridge{
		device:  device,
		inboxes: inboxes,
		machine: NewConnectionMachine(b),
		bus:     b,
		logger:  logger,
	}
	device.RegisterEventHandler(NewEventHandler(b, br.machine, device, logger).Handle)
	return br
}

// Machine exposes the connection state.
func (br *Bridge) Machine() *status.Machine {
	return br.machine
}

// Start registers the inbox and connects. Without credentials it logs and
// returns; pairing happens out of band.
func (br *Bridge) Start(ctx context.Context) error {
	if !br.device.IsLoggedIn() {
		br.logger.Warn("WhatsApp inbox not paired, run medconnectctl pair")
		return nil
	}
	if _, err := br.Register(ctx); err != nil {
		return err
	}
	if err := br.machine.Transition(Connecting); err != nil {
		return err
	}
	go func() {
		if err := br.device.Connect(); err != nil {
			br.logger.Error("WhatsApp connect failed", zap.Error(err))
			_ = br.machine.TransitionWithReason(Disconnected, err.Error())
		}
	}()
	return nil
}

// Stop disconnects the device.
func (br *Bridge) Stop() {
	br.device.Disconnect()
}

// Register makes sure the linked number exists as an inbox. An existing
// inbox keeps its name and primary flag.
func (br *Bridge) Register(ctx context.Context) (store.Inbox, error) {
	addr := br.device.InboxAddress()
	if addr == "" {
		return store.Inbox{}, fmt.Errorf("device is not paired")
	}
	in := store.Inbox{PhoneAddress: addr, DisplayName: "WhatsApp " + addr, Active: true}
	created, err := br.inboxes.EnsureInbox(ctx, &in)
	if err != nil {
		return store.Inbox{}, fmt.Errorf("register inbox %s: %w", addr, err)
	}
	if created {
		br.logger.Info("registered WhatsApp inbox", zap.String("address", addr), zap.Int64("inbox_id", in.ID))
		if br.OnRegistered != nil {
			br.OnRegistered(ctx)
		}
	}
	return in, nil
}
