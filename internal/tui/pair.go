package tui

import (
	"context"

	"github.com/sumithjoshi99/medconnect/internal/wa"
	"go.uber.org/zap"
)

// runPairing links a phone to the WhatsApp inbox, showing QR codes as
// they rotate. Runs off the UI goroutine.
func (a *App) runPairing() {
	br := a.eng.Bridge
	if br == nil {
		a.flash.Warn("WhatsApp inbox is disabled in the config")
		return
	}
	if br.Machine().Current() == wa.Connected {
		a.flash.Info("WhatsApp inbox is already paired")
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	if a.pairCancel != nil {
		a.pairCancel()
	}
	a.pairCancel = cancel
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.pair.ShowMessage("Requesting a pairing code...")
		a.showOverlay(pagePair, a.pair)
	})

	events, err := br.StartQRAuth(ctx)
	if err != nil {
		a.logger.Warn("start pairing", zap.Error(err))
		a.app.QueueUpdateDraw(func() { a.pair.ShowMessage("Pairing failed: " + err.Error()) })
		return
	}
	for evt := range events {
		a.app.QueueUpdateDraw(func() {
			switch evt.Type {
			case wa.AuthEventQRCode:
				a.pair.ShowQR(evt.QRCode)
			case wa.AuthEventAuthenticated:
				a.pair.ShowMessage("Paired. The WhatsApp inbox is now listed with the others.\n\nPress Esc to close.")
				a.flash.Info("WhatsApp inbox paired")
			default:
				a.pair.ShowMessage(evt.Message + "\n\nPress p to try again.")
			}
		})
	}
}

func (a *App) cancelPairing() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pairCancel != nil {
		a.pairCancel()
		a.pairCancel = nil
	}
}
