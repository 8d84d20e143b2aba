package wa

import (
	"context"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"go.uber.org/zap"
)

// AuthEventType enumerates pairing events.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent is one step of the QR pairing flow, also published as wa.qr.
type AuthEvent struct {
	Type    AuthEventType
	QRCode  string
	Message string
}

// Done reports whether the flow ends with this event.
func (e AuthEvent) Done() bool {
	return e.Type != AuthEventQRCode
}

// StartQRAuth begins QR pairing. The returned channel yields a code per
// QR rotation and closes after the terminal event. On success the linked
// number is registered as an inbox.
func (br *Bridge) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	qrChan, err := br.device.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}
	if err := br.machine.Transition(Connecting); err != nil {
		return nil, err
	}

	out := make(chan AuthEvent, 10)
	emit := func(evt AuthEvent) {
		br.bus.Publish(bus.NewEvent(bus.KindWAQR, evt))
		select {
		case out <- evt:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)

		// Connect must be called after GetQRChannel.
		if err := br.device.Connect(); err != nil {
			_ = br.machine.TransitionWithReason(Disconnected, err.Error())
			emit(AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
			return
		}

		for item := range qrChan {
			switch item.Event {
			case "code":
				emit(AuthEvent{Type: AuthEventQRCode, QRCode: item.Code})
			case "success":
				if _, err := br.Register(ctx); err != nil {
					br.logger.Warn("paired but inbox registration failed", zap.Error(err))
					emit(AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
					return
				}
				emit(AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"})
				return
			case "timeout":
				_ = br.machine.TransitionWithReason(Disconnected, "qr timeout")
				emit(AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"})
				return
			default:
				if item.Error != nil {
					_ = br.machine.TransitionWithReason(Disconnected, item.Error.Error())
					emit(AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()})
					return
				}
			}
		}
	}()

	return out, nil
}
