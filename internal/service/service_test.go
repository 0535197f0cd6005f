package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/network"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWM struct {
	mu      sync.Mutex
	added   int
	removed int
	shown   bool
}

func (f *fakeWM) DisplayMetrics() overlay.DisplayMetrics {
	return overlay.DisplayMetrics{WidthPx: 800, HeightPx: 600, Density: 1}
}

func (f *fakeWM) AddView(*overlay.ControlView, overlay.LayoutParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added++
	f.shown = true
	return nil
}

func (f *fakeWM) UpdateViewLayout(*overlay.ControlView, overlay.LayoutParams) error { return nil }

func (f *fakeWM) RemoveView(*overlay.ControlView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	f.shown = false
	return nil
}

func (f *fakeWM) snapshot() (added, removed int, shown bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added, f.removed, f.shown
}

type fakeNotifications struct {
	mu        sync.Mutex
	shown     []Notification
	updates   []status.Status
	cancelled int
}

func (f *fakeNotifications) Show(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n)
	return nil
}

func (f *fakeNotifications) Update(st status.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, st)
}

func (f *fakeNotifications) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
}

func (f *fakeNotifications) kinds() []status.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]status.Kind, 0, len(f.updates))
	for _, st := range f.updates {
		kinds = append(kinds, st.Kind)
	}
	return kinds
}

type harness struct {
	svc     *Service
	wm      *fakeWM
	notes   *fakeNotifications
	opened  atomic.Int32
	closed  atomic.Int32
	bound   atomic.Int32
	notices chan string
	uploads atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		wm:      &fakeWM{},
		notes:   &fakeNotifications{},
		notices: make(chan string, 16),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/active-flows/com.example.app/":
			_, _ = w.Write([]byte(`{"flowId":42}`))
		case "/api/flows/42/live-screenshot/":
			h.uploads.Add(1)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Identity = "com.example.app"
	cfg.Collector.BaseURL = srv.URL + "/api/"
	cfg.Capture.CacheDir = t.TempDir()
	cfg.Upload.RevertDelay = 30 * time.Millisecond

	platform := PlatformFunc(func(ui overlay.UI) (Host, error) {
		h.opened.Add(1)
		return Host{
			WindowManager: h.wm,
			Notifier:      overlay.NotifierFunc(func(m string) { h.notices <- m }),
			Bind:          func(*overlay.Controller) { h.bound.Add(1) },
			Close: func() error {
				h.closed.Add(1)
				return nil
			},
		}, nil
	})

	h.svc = New(Options{
		Config:        cfg,
		Platform:      platform,
		Notifications: h.notes,
		Connectivity:  network.ConnectivityFunc(func() bool { return true }),
	})
	t.Cleanup(func() { _ = h.svc.Stop() })
	return h
}

func screen() capture.Surface {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	img.SetRGBA(1, 1, color.RGBA{R: 0xff, A: 0xff})
	return capture.NewImageSurface(img, image.Point{})
}

func TestStartShowsOverlayAndNotification(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background()))
	require.NoError(t, h.svc.Start(context.Background()), "second start is a no-op")

	assert.True(t, h.svc.IsRunning())
	added, _, shown := h.wm.snapshot()
	assert.Equal(t, 1, added)
	assert.True(t, shown)
	assert.Equal(t, int32(1), h.opened.Load())
	assert.Equal(t, int32(1), h.bound.Load())

	h.notes.mu.Lock()
	require.Len(t, h.notes.shown, 1)
	n := h.notes.shown[0]
	h.notes.mu.Unlock()
	assert.Equal(t, NotificationTitle, n.Title)
	assert.Equal(t, NotificationText, n.Text)
	require.Len(t, n.Actions, 1)
	assert.Equal(t, ActionStop, n.Actions[0].Label)

	// The initial Idle status reaches the notification
	assert.Eventually(t, func() bool { return len(h.notes.kinds()) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestStopTearsDownOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background()))

	require.NoError(t, h.svc.Stop())
	require.NoError(t, h.svc.Stop())

	assert.False(t, h.svc.IsRunning())
	_, removed, shown := h.wm.snapshot()
	assert.Equal(t, 1, removed)
	assert.False(t, shown)
	assert.Equal(t, int32(1), h.closed.Load())

	h.notes.mu.Lock()
	assert.Equal(t, 1, h.notes.cancelled)
	h.notes.mu.Unlock()

	assert.ErrorIs(t, h.svc.Trigger(context.Background()), ErrNotRunning)
	_, err := h.svc.Subscribe()
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, status.Idle, h.svc.Status().Kind)
}

func TestStopEndsSubscriptions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background()))

	sub, err := h.svc.Subscribe()
	require.NoError(t, err)
	defer sub.Close()
	<-sub.C()

	require.NoError(t, h.svc.Stop())
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestRestartAfterStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background()))
	require.NoError(t, h.svc.Stop())
	require.NoError(t, h.svc.Start(context.Background()))

	assert.True(t, h.svc.IsRunning())
	added, removed, shown := h.wm.snapshot()
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
	assert.True(t, shown)
}

func TestStopActionStopsService(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background()))

	h.notes.mu.Lock()
	stop := h.notes.shown[0].Actions[0].Run
	h.notes.mu.Unlock()
	stop()

	assert.Eventually(t, func() bool { return !h.svc.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestContextCancelStopsService(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.svc.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool { return !h.svc.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestPlatformErrorFailsStart(t *testing.T) {
	svc := New(Options{
		Config: config.Defaults(),
		Platform: PlatformFunc(func(overlay.UI) (Host, error) {
			return Host{}, errors.New("no display")
		}),
	})
	err := svc.Start(context.Background())
	assert.ErrorContains(t, err, "no display")
	assert.False(t, svc.IsRunning())
}

func TestTriggerWithoutTargetNotifies(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start(context.Background()))

	assert.ErrorIs(t, h.svc.Trigger(context.Background()), overlay.ErrNoTarget)
	select {
	case msg := <-h.notices:
		assert.Equal(t, overlay.NoticeNoTarget, msg)
	case <-time.After(time.Second):
		t.Fatal("no notice")
	}
	assert.Equal(t, int32(0), h.uploads.Load())
}

func TestRegisteredTargetUploadCycle(t *testing.T) {
	h := newHarness(t)
	h.svc.RegisterCaptureTarget(screen())
	require.NoError(t, h.svc.Start(context.Background()))

	sub, err := h.svc.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.svc.Trigger(context.Background()))

	var kinds []status.Kind
	timeout := time.After(3 * time.Second)
	for len(kinds) < 4 {
		select {
		case st := <-sub.C():
			kinds = append(kinds, st.Kind)
		case <-timeout:
			t.Fatalf("timed out, saw %v", kinds)
		}
	}
	assert.Equal(t, []status.Kind{status.Idle, status.InProgress, status.Succeeded, status.Idle}, kinds)
	assert.Equal(t, int32(1), h.uploads.Load())

	// The notification sees the same transitions
	assert.Eventually(t, func() bool { return len(h.notes.kinds()) >= 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, kinds, h.notes.kinds()[:4])

	// Success is announced to the user
	assert.Eventually(t, func() bool {
		for {
			select {
			case msg := <-h.notices:
				if msg == overlay.NoticeUploadSucceeded {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}

func TestIdentityCanChange(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "com.example.app", h.svc.Identity())
	h.svc.SetIdentity("other")
	assert.Equal(t, "other", h.svc.Identity())
}
