package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sumithjoshi99/medconnect/internal/badge"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeNav struct {
	rec     *recorder
	current int64
}

func (n *fakeNav) CurrentInbox() int64 { return n.current }

func (n *fakeNav) SwitchInbox(_ context.Context, id int64) error {
	n.current = id
	n.rec.add("inbox")
	return nil
}

func (n *fakeNav) SwitchScreen(_ context.Context, s badge.Screen) { n.rec.add("screen:" + string(s)) }

func (n *fakeNav) SelectConversation(_ context.Context, _ int64) error {
	n.rec.add("select")
	return nil
}

type fakeFocus struct{ rec *recorder }

func (f fakeFocus) Focus() { f.rec.add("focus") }

type fakeToaster struct{ toasts []Toast }

func (f *fakeToaster) Toast(t Toast) { f.toasts = append(f.toasts, t) }

type fakeSound struct {
	plays int
	err   error
	panic bool
}

func (s *fakeSound) Play() error {
	s.plays++
	if s.panic {
		panic("no audio device")
	}
	return s.err
}

type fakePerm struct {
	p         Permission
	requested int
}

func (f *fakePerm) Permission() Permission { return f.p }

func (f *fakePerm) Request(context.Context) (Permission, error) {
	f.requested++
	f.p = Granted
	return f.p, nil
}

type fakeHandle struct{ closed int }

func (h *fakeHandle) Close() { h.closed++ }

type fakeDesktop struct {
	shown   []Desktop
	handles []*fakeHandle
	err     error
	// clickOnShow fires OnClick before Show returns.
	clickOnShow bool
}

func (d *fakeDesktop) Show(n Desktop) (Handle, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.shown = append(d.shown, n)
	h := &fakeHandle{}
	d.handles = append(d.handles, h)
	if d.clickOnShow {
		n.OnClick()
	}
	return h, nil
}

type harness struct {
	d       *Dispatcher
	rec     *recorder
	nav     *fakeNav
	toaster *fakeToaster
	sound   *fakeSound
	perm    *fakePerm
	desktop *fakeDesktop
	timers  []func()
	delays  []time.Duration
}

func newHarness(p Permission) *harness {
	h := &harness{
		rec:     &recorder{},
		toaster: &fakeToaster{},
		sound:   &fakeSound{},
		perm:    &fakePerm{p: p},
		desktop: &fakeDesktop{},
	}
	h.nav = &fakeNav{rec: h.rec}
	h.d = NewDispatcher(Options{
		Toaster:    h.toaster,
		Desktop:    h.desktop,
		Sound:      h.sound,
		Permission: h.perm,
		Focuser:    fakeFocus{rec: h.rec},
		Navigator:  h.nav,
	})
	h.d.afterFunc = func(d time.Duration, f func()) *time.Timer {
		h.delays = append(h.delays, d)
		h.timers = append(h.timers, f)
		return nil
	}
	return h
}

var (
	mountVernon = store.Inbox{ID: 1, PhoneAddress: "+19145550001", DisplayName: "Mount Vernon"}
	newRochelle = store.Inbox{ID: 2, PhoneAddress: "+19145550002", DisplayName: "New Rochelle", Primary: true}
)

func TestScenarioDClickOrder(t *testing.T) {
	h := newHarness(Granted)
	h.nav.current = mountVernon.ID

	h.d.Notify(context.Background(), Notification{PatientID: 7, PatientName: "Jane Doe", Inbox: &newRochelle, Body: "hello"})
	require.Len(t, h.desktop.shown, 1)
	assert.Equal(t, "Jane Doe (New Rochelle)", h.desktop.shown[0].Title)

	h.desktop.shown[0].OnClick()

	assert.Equal(t, []string{"focus", "inbox", "screen:messaging", "select"}, h.rec.list())
	assert.Equal(t, newRochelle.ID, h.nav.current)
	assert.Equal(t, 1, h.desktop.handles[0].closed, "click dismisses the notification")
}

func TestClickSkipsInboxSwitchWhenAlreadySelected(t *testing.T) {
	h := newHarness(Granted)
	h.nav.current = newRochelle.ID

	h.d.Notify(context.Background(), Notification{PatientID: 7, PatientName: "Jane", Inbox: &newRochelle})
	h.desktop.shown[0].OnClick()

	assert.Equal(t, []string{"focus", "screen:messaging", "select"}, h.rec.list())
}

func TestClickWithoutInboxKeepsSelection(t *testing.T) {
	h := newHarness(Granted)
	h.nav.current = mountVernon.ID

	h.d.Notify(context.Background(), Notification{PatientID: 7, PatientName: "Jane"})
	assert.Equal(t, "Jane (All locations)", h.toaster.toasts[0].Title)
	h.desktop.shown[0].OnClick()
	assert.Equal(t, []string{"focus", "screen:messaging", "select"}, h.rec.list())
}

func TestToastAndSoundRegardlessOfPermission(t *testing.T) {
	for _, p := range []Permission{Granted, Denied, Default} {
		t.Run(string(p), func(t *testing.T) {
			h := newHarness(p)
			h.d.Notify(context.Background(), Notification{PatientName: "Jane", Inbox: &mountVernon, Body: "hi"})

			require.Len(t, h.toaster.toasts, 1)
			assert.Equal(t, "hi", h.toaster.toasts[0].Body)
			assert.NotEmpty(t, h.toaster.toasts[0].ID)
			assert.Equal(t, 1, h.sound.plays)
			assert.Zero(t, h.perm.requested, "dispatch must never prompt")

			if p == Granted {
				assert.Len(t, h.desktop.shown, 1)
			} else {
				assert.Empty(t, h.desktop.shown)
			}
		})
	}
}

func TestSoundFailuresSwallowed(t *testing.T) {
	h := newHarness(Granted)
	h.sound.err = errors.New("autoplay blocked")
	h.d.Notify(context.Background(), Notification{PatientName: "Jane"})
	assert.Len(t, h.desktop.shown, 1)

	h = newHarness(Granted)
	h.sound.panic = true
	assert.NotPanics(t, func() {
		h.d.Notify(context.Background(), Notification{PatientName: "Jane"})
	})
	assert.Len(t, h.toaster.toasts, 1)
	assert.Len(t, h.desktop.shown, 1)
}

func TestDesktopAutoDismiss(t *testing.T) {
	h := newHarness(Granted)
	h.d.Notify(context.Background(), Notification{PatientName: "Jane"})

	require.Len(t, h.timers, 1)
	assert.Equal(t, DefaultDismissAfter, h.delays[0])
	h.timers[0]()
	h.timers[0]()
	assert.Equal(t, 1, h.desktop.handles[0].closed, "close runs once")

	h.desktop.shown[0].OnClick()
	assert.Equal(t, 1, h.desktop.handles[0].closed)
}

func TestClickBeforeShowReturnsClosesPopup(t *testing.T) {
	h := newHarness(Granted)
	h.desktop.clickOnShow = true
	h.d.Notify(context.Background(), Notification{PatientID: 7, PatientName: "Jane", Inbox: &newRochelle})

	require.Len(t, h.desktop.handles, 1)
	assert.Equal(t, 1, h.desktop.handles[0].closed, "early click still closes the popup")
	assert.Empty(t, h.timers, "no dismiss timer for a closed popup")
	assert.Equal(t, "focus", h.rec.list()[0])
}

func TestDesktopFailureIsNotFatal(t *testing.T) {
	h := newHarness(Granted)
	h.desktop.err = errors.New("no notification daemon")
	h.d.Notify(context.Background(), Notification{PatientName: "Jane"})
	assert.Len(t, h.toaster.toasts, 1)
	assert.Empty(t, h.timers)
}

func TestRequestPermissionIsExplicit(t *testing.T) {
	h := newHarness(Default)
	p, err := h.d.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Granted, p)
	assert.Equal(t, 1, h.perm.requested)

	h.d.Notify(context.Background(), Notification{PatientName: "Jane"})
	assert.Len(t, h.desktop.shown, 1)
}

func TestConfigPermissionPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.Default()

	asked := 0
	p := NewConfigPermission(cfg, path, func(context.Context) (bool, error) {
		asked++
		return false, nil
	})
	assert.Equal(t, Default, p.Permission())

	got, err := p.Request(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Denied, got)

	// A remembered denial is not asked again.
	got, err = p.Request(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Denied, got)
	assert.Equal(t, 1, asked)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "denied", loaded.Notifications.Desktop)
}

func TestBellPlayer(t *testing.T) {
	var buf bytesWriter
	require.NoError(t, BellPlayer{W: &buf}.Play())
	assert.Equal(t, "\a", string(buf))
	assert.Error(t, BellPlayer{}.Play())
}

type bytesWriter []byte

func (b *bytesWriter) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
