package notify

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"go.uber.org/zap"
)

// BellPlayer rings the terminal bell on w.
type BellPlayer struct {
	W io.Writer
}

// Play writes BEL.
func (b BellPlayer) Play() error {
	if b.W == nil {
		return errors.New("no bell writer")
	}
	_, err := b.W.Write([]byte{'\a'})
	return err
}

// ConfigPermission keeps the permission in the config file. Ask, if set,
// is consulted on Request while the permission is still undecided; without
// it Request grants. A denial is remembered and not asked again.
type ConfigPermission struct {
	mu   sync.Mutex
	cfg  *config.Config
	path string
	ask  func(ctx context.Context) (bool, error)
}

// NewConfigPermission creates a provider persisting to path.
func NewConfigPermission(cfg *config.Config, path string, ask func(ctx context.Context) (bool, error)) *ConfigPermission {
	return &ConfigPermission{cfg: cfg, path: path, ask: ask}
}

// Permission returns the remembered decision.
func (p *ConfigPermission) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Permission(p.cfg.Notifications.Desktop)
}

// Request asks for permission and saves the answer.
func (p *ConfigPermission) Request(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := Permission(p.cfg.Notifications.Desktop)
	if current != Default {
		return current, nil
	}
	decision := Granted
	if p.ask != nil {
		ok, err := p.ask(ctx)
		if err != nil {
			return current, err
		}
		if !ok {
			decision = Denied
		}
	}
	p.cfg.Notifications.Desktop = string(decision)
	if p.path != "" {
		if err := config.Save(p.path, p.cfg); err != nil {
			return decision, err
		}
	}
	return decision, nil
}

// LogToaster logs toasts and republishes them on the bus for renderers.
type LogToaster struct {
	Logger *zap.Logger
	Bus    *bus.Bus
}

// Toast implements Toaster.
func (t LogToaster) Toast(toast Toast) {
	if t.Logger != nil {
		t.Logger.Info("toast",
			zap.String("id", toast.ID),
			zap.String("level", string(toast.Level)),
			zap.String("title", toast.Title))
	}
	if t.Bus != nil {
		t.Bus.Publish(bus.NewEvent(bus.KindNotifyToast, toast))
	}
}

// LogDesktop stands in for a desktop notifier in the headless engine.
type LogDesktop struct {
	Logger *zap.Logger
}

// Show logs the notification.
func (d LogDesktop) Show(n Desktop) (Handle, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("desktop notification", zap.String("id", n.ID), zap.String("title", n.Title))
	return logHandle{id: n.ID, logger: logger}, nil
}

type logHandle struct {
	id     string
	logger *zap.Logger
}

func (h logHandle) Close() {
	h.logger.Debug("desktop notification dismissed", zap.String("id", h.id))
}
