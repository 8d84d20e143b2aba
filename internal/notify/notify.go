// Package notify fans a new inbound message out to an in-app toast, an
// audible cue and, when the user allowed it, a desktop notification.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.uber.org/zap"
)

// Permission is the remembered desktop-notification decision.
type Permission string

const (
	Granted Permission = "granted"
	Denied  Permission = "denied"
	Default Permission = "default"
)

// PermissionProvider reports and requests desktop-notification permission.
type PermissionProvider interface {
	Permission() Permission
	Request(ctx context.Context) (Permission, error)
}

// Navigator is the shell surface the notification click action drives.
type Navigator interface {
	CurrentInbox() int64
	SwitchInbox(ctx context.Context, id int64) error
	SwitchScreen(ctx context.Context, s badge.Screen)
	SelectConversation(ctx context.Context, patientID int64) error
}

// Level is a toast severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Toast is an in-app transient message.
type Toast struct {
	ID    string
	Level Level
	Title string
	Body  string
}

// Toaster shows in-app toasts.
type Toaster interface {
	Toast(t Toast)
}

// Desktop is what a desktop notification is shown with.
type Desktop struct {
	ID      string
	Title   string
	Body    string
	OnClick func()
}

// Handle closes a shown desktop notification.
type Handle interface {
	Close()
}

// DesktopNotifier shows desktop notifications.
type DesktopNotifier interface {
	Show(n Desktop) (Handle, error)
}

// SoundPlayer plays the audible cue.
type SoundPlayer interface {
	Play() error
}

// WindowFocuser brings the application window to the foreground.
type WindowFocuser interface {
	Focus()
}

// Notification describes one inbound message. A nil Inbox means the message
// could not be attributed to a configured inbox.
type Notification struct {
	PatientID   int64
	PatientName string
	Inbox       *store.Inbox
	Body        string
}

// InboxLabel returns the inbox name, or the global label when unattributed.
func (n Notification) InboxLabel() string {
	if n.Inbox == nil {
		return badge.GlobalLabel
	}
	return n.Inbox.Label()
}

// Options configures a Dispatcher. Nil sinks are skipped.
type Options struct {
	Toaster      Toaster
	Desktop      DesktopNotifier
	Sound        SoundPlayer
	Permission   PermissionProvider
	Focuser      WindowFocuser
	Navigator    Navigator
	DismissAfter time.Duration
	Logger       *zap.Logger
}

// DefaultDismissAfter is used when Options.DismissAfter is zero.
const DefaultDismissAfter = 5 * time.Second

// Dispatcher delivers notifications to the configured sinks.
type Dispatcher struct {
	opts      Options
	logger    *zap.Logger
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.DismissAfter <= 0 {
		opts.DismissAfter = DefaultDismissAfter
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{opts: opts, logger: logger, afterFunc: time.AfterFunc}
}

// SetNavigator attaches the click target once the shell exists.
func (d *Dispatcher) SetNavigator(nav Navigator) {
	d.opts.Navigator = nav
}

// Notify emits the toast and sound, then the desktop notification if
// permission was granted earlier. It never prompts for permission and never
// fails; sink errors are logged.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	title := fmt.Sprintf("%s (%s)", n.PatientName, n.InboxLabel())
	id := uuid.NewString()

	if d.opts.Toaster != nil {
		d.opts.Toaster.Toast(Toast{ID: id, Level: LevelInfo, Title: title, Body: n.Body})
	}
	d.playSound()

	if d.opts.Desktop == nil || d.opts.Permission == nil || d.opts.Permission.Permission() != Granted {
		return
	}

	clickCtx := context.WithoutCancel(ctx)
	shown := &onceHandle{}
	handle, err := d.opts.Desktop.Show(Desktop{
		ID:    id,
		Title: title,
		Body:  n.Body,
		OnClick: func() {
			shown.Close()
			d.open(clickCtx, n)
		},
	})
	if err != nil {
		d.logger.Warn("desktop notification failed", zap.Error(err))
		return
	}
	if !shown.set(handle) {
		return
	}
	d.afterFunc(d.opts.DismissAfter, shown.Close)
}

// Permission returns the remembered decision, Denied without a provider.
func (d *Dispatcher) Permission() Permission {
	if d.opts.Permission == nil {
		return Denied
	}
	return d.opts.Permission.Permission()
}

// RequestPermission asks the provider for desktop permission. It is only
// ever called from an explicit user action.
func (d *Dispatcher) RequestPermission(ctx context.Context) (Permission, error) {
	if d.opts.Permission == nil {
		return Denied, nil
	}
	p, err := d.opts.Permission.Request(ctx)
	if err != nil {
		return p, fmt.Errorf("request notification permission: %w", err)
	}
	d.logger.Info("notification permission", zap.String("permission", string(p)))
	return p, nil
}

// open runs the click action: focus, inbox, screen, conversation.
func (d *Dispatcher) open(ctx context.Context, n Notification) {
	if d.opts.Focuser != nil {
		d.opts.Focuser.Focus()
	}
	nav := d.opts.Navigator
	if nav == nil {
		return
	}
	if n.Inbox != nil && nav.CurrentInbox() != n.Inbox.ID {
		if err := nav.SwitchInbox(ctx, n.Inbox.ID); err != nil {
			d.logger.Warn("switch inbox from notification", zap.Int64("inbox", n.Inbox.ID), zap.Error(err))
		}
	}
	nav.SwitchScreen(ctx, badge.Messaging)
	if err := nav.SelectConversation(ctx, n.PatientID); err != nil {
		d.logger.Warn("select conversation from notification", zap.Int64("patient", n.PatientID), zap.Error(err))
	}
}

func (d *Dispatcher) playSound() {
	if d.opts.Sound == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("sound playback panicked", zap.Any("panic", r))
		}
	}()
	if err := d.opts.Sound.Play(); err != nil {
		d.logger.Debug("sound playback failed", zap.Error(err))
	}
}

// onceHandle closes the shown notification at most once. A Close that
// arrives before Show has returned is applied as soon as the handle is set.
type onceHandle struct {
	mu     sync.Mutex
	h      Handle
	closed bool
}

// set attaches the handle. It reports false when the notification was
// already closed, in which case the handle is closed right away.
func (o *onceHandle) set(h Handle) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		h.Close()
		return false
	}
	o.h = h
	o.mu.Unlock()
	return true
}

func (o *onceHandle) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	h := o.h
	o.mu.Unlock()
	if h != nil {
		h.Close()
	}
}
