package upload

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/network"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inline struct{}

func (inline) Call(_ context.Context, fn func() error) error { return fn() }

type fakeCollector struct {
	flowID    *int
	resolve   *network.NetworkError
	upload    *network.NetworkError
	block     chan struct{}
	panicOnUp bool

	mu       sync.Mutex
	uploaded []string
	resolves int
}

func (f *fakeCollector) ResolveUploadTarget(ctx context.Context, identity string) network.Result[network.UploadTarget] {
	f.mu.Lock()
	f.resolves++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.resolve != nil {
		return network.Result[network.UploadTarget]{Err: f.resolve}
	}
	return network.Result[network.UploadTarget]{Data: network.UploadTarget{FlowID: f.flowID}}
}

func (f *fakeCollector) UploadScreenshot(ctx context.Context, flowID int, artifact *capture.Artifact) network.Result[network.Unit] {
	if f.panicOnUp {
		panic("upload exploded")
	}
	f.mu.Lock()
	f.uploaded = append(f.uploaded, artifact.Path)
	f.mu.Unlock()
	if f.upload != nil {
		return network.Result[network.Unit]{Err: f.upload}
	}
	return network.Result[network.Unit]{}
}

type countingCapturer struct {
	inner *capture.Capturer
	calls atomic.Int32
}

func (c *countingCapturer) Capture(ctx context.Context, s capture.Surface) (*capture.Artifact, error) {
	c.calls.Add(1)
	return c.inner.Capture(ctx, s)
}

func intPtr(v int) *int { return &v }

func surface() capture.Surface {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{G: 200, A: 255})
	return capture.NewImageSurface(img, image.Point{})
}

type harness struct {
	orch     *Orchestrator
	scope    *dispatch.Scope
	capturer *countingCapturer
	dir      string
	sub      *status.Subscription
}

func newHarness(t *testing.T, collector Collector, revert time.Duration) *harness {
	t.Helper()
	dir := t.TempDir()
	scope := dispatch.NewScope(context.Background())
	capt := &countingCapturer{inner: capture.NewCapturer(inline{}, dir, 0)}
	orch := NewOrchestrator(func() (Collector, error) { return collector, nil }, capt, scope, Options{RevertDelay: revert})
	sub := orch.Statuses().Subscribe()

	t.Cleanup(func() {
		sub.Close()
		scope.Close()
		scope.Wait()
	})
	return &harness{orch: orch, scope: scope, capturer: capt, dir: dir, sub: sub}
}

func (h *harness) next(t *testing.T) status.Status {
	t.Helper()
	select {
	case st := <-h.sub.C():
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
		return status.Status{}
	}
}

func (h *harness) artifacts(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.dir, "*.png"))
	require.NoError(t, err)
	return matches
}

func TestSuccessfulCycleRevertsToIdle(t *testing.T) {
	collector := &fakeCollector{flowID: intPtr(42)}
	h := newHarness(t, collector, 30*time.Millisecond)

	assert.Equal(t, status.Idle, h.next(t).Kind)
	require.True(t, h.orch.TriggerUpload(surface(), "com.example.app"))

	assert.Equal(t, status.InProgress, h.next(t).Kind)
	done := h.next(t)
	require.Equal(t, status.Succeeded, done.Kind)
	assert.Equal(t, Receipt{FlowID: 42, Artifact: filepath.Base(collector.uploaded[0])}, done.Payload)

	idle := h.next(t)
	assert.Equal(t, status.Idle, idle.Kind)
	assert.Equal(t, done.Cycle, idle.Cycle)

	assert.Empty(t, h.artifacts(t), "artifact must be deleted after a confirmed upload")
}

func TestNullFlowIDFailsWithoutCapture(t *testing.T) {
	h := newHarness(t, &fakeCollector{flowID: nil}, time.Minute)
	h.next(t)

	require.True(t, h.orch.TriggerUpload(surface(), "com.example.app"))
	assert.Equal(t, status.InProgress, h.next(t).Kind)

	failed := h.next(t)
	require.Equal(t, status.Failed, failed.Kind)
	assert.Equal(t, MsgNullFlowID, failed.Message)
	assert.Equal(t, network.CodeUnknown, failed.Code)
	assert.Equal(t, int32(0), h.capturer.calls.Load())
}

func TestResolveFailureStopsCycle(t *testing.T) {
	collector := &fakeCollector{resolve: &network.NetworkError{Message: "not found", Code: 404}}
	h := newHarness(t, collector, time.Minute)
	h.next(t)

	h.orch.TriggerUpload(surface(), "com.example.app")
	h.next(t)
	failed := h.next(t)
	assert.Equal(t, "not found", failed.Message)
	assert.Equal(t, 404, failed.Code)
	assert.Equal(t, int32(0), h.capturer.calls.Load())
}

func TestUploadFailureKeepsArtifact(t *testing.T) {
	collector := &fakeCollector{
		flowID: intPtr(7),
		upload: &network.NetworkError{Message: "Network connection error", Code: network.CodeNoConnectivity},
	}
	h := newHarness(t, collector, time.Minute)
	h.next(t)

	h.orch.TriggerUpload(surface(), "com.example.app")
	h.next(t)
	failed := h.next(t)
	assert.Equal(t, status.Failed, failed.Kind)
	assert.Equal(t, network.CodeNoConnectivity, failed.Code)

	assert.Len(t, h.artifacts(t), 1, "artifact must survive a failed upload")
}

func TestPanicBecomesFailedStatus(t *testing.T) {
	h := newHarness(t, &fakeCollector{flowID: intPtr(1), panicOnUp: true}, time.Minute)
	h.next(t)

	h.orch.TriggerUpload(surface(), "com.example.app")
	h.next(t)
	failed := h.next(t)
	assert.Equal(t, status.Failed, failed.Kind)
	assert.Equal(t, "upload exploded", failed.Message)
	assert.Equal(t, network.CodeUnknown, failed.Code)
}

func TestCaptureFailureIsUnknown(t *testing.T) {
	h := newHarness(t, &fakeCollector{flowID: intPtr(1)}, time.Minute)
	h.next(t)

	empty := capture.NewImageSurface(image.NewRGBA(image.Rect(0, 0, 0, 0)), image.Point{})
	h.orch.TriggerUpload(empty, "com.example.app")
	h.next(t)
	failed := h.next(t)
	assert.Equal(t, status.Failed, failed.Kind)
	assert.Equal(t, network.CodeUnknown, failed.Code)
	assert.Contains(t, failed.Message, "capture failed")
}

func TestMissingIdentityFails(t *testing.T) {
	h := newHarness(t, &fakeCollector{flowID: intPtr(1)}, time.Minute)
	h.next(t)

	h.orch.TriggerUpload(surface(), "")
	h.next(t)
	failed := h.next(t)
	assert.Equal(t, MsgMissingIdentity, failed.Message)
}

func TestSingleFlight(t *testing.T) {
	collector := &fakeCollector{flowID: intPtr(1), block: make(chan struct{})}
	h := newHarness(t, collector, time.Minute)
	h.next(t)

	require.True(t, h.orch.TriggerUpload(surface(), "app"))
	for i := 0; i < 10; i++ {
		assert.False(t, h.orch.TriggerUpload(surface(), "app"))
	}
	assert.Equal(t, status.InProgress, h.next(t).Kind)

	close(collector.block)
	assert.Equal(t, status.Succeeded, h.next(t).Kind)

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, 1, collector.resolves)
	assert.Len(t, collector.uploaded, 1)
}

func TestNewCycleIsNotClobberedByStaleRevert(t *testing.T) {
	collector := &fakeCollector{flowID: nil}
	h := newHarness(t, collector, 40*time.Millisecond)
	h.next(t)

	h.orch.TriggerUpload(surface(), "app")
	h.next(t)
	first := h.next(t)
	require.Equal(t, status.Failed, first.Kind)

	// Retrigger before the first revert fires
	collector.block = make(chan struct{})
	require.True(t, h.orch.TriggerUpload(surface(), "app"))
	second := h.next(t)
	assert.Equal(t, status.InProgress, second.Kind)
	assert.Equal(t, first.Cycle+1, second.Cycle)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, status.InProgress, h.orch.Status().Kind)
	close(collector.block)
}

func TestClosedRunnerRejectsTrigger(t *testing.T) {
	h := newHarness(t, &fakeCollector{flowID: intPtr(1)}, time.Minute)
	h.scope.Close()

	assert.False(t, h.orch.TriggerUpload(surface(), "app"))
	assert.Equal(t, status.Idle, h.orch.Status().Kind)
}

func TestEndToEndAgainstCollector(t *testing.T) {
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/active-flows/com.example.app/":
			_, _ = w.Write([]byte(`{"flowId":42}`))
		case "/api/flows/42/live-screenshot/":
			f, _, err := r.FormFile("screenshot")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.Copy(io.Discard, f)
			f.Close()
			uploads.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	manager := network.NewManagerWithOptions(network.Options{
		BaseURL:      srv.URL + "/api/",
		Connectivity: network.ConnectivityFunc(func() bool { return true }),
	})

	dir := t.TempDir()
	scope := dispatch.NewScope(context.Background())
	defer func() {
		scope.Close()
		scope.Wait()
	}()
	orch := NewOrchestrator(FromManager(manager), capture.NewCapturer(inline{}, dir, 0), scope, Options{RevertDelay: 20 * time.Millisecond})
	sub := orch.Statuses().Subscribe()
	defer sub.Close()

	require.True(t, orch.TriggerUpload(surface(), "com.example.app"))

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
	assert.Equal(t, int32(1), uploads.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCollectorSourceErrorFails(t *testing.T) {
	scope := dispatch.NewScope(context.Background())
	defer scope.Close()

	orch := NewOrchestrator(func() (Collector, error) { return nil, errors.New("no client") },
		capture.NewCapturer(inline{}, t.TempDir(), 0), scope, Options{})
	sub := orch.Statuses().Subscribe()
	defer sub.Close()
	<-sub.C()

	orch.TriggerUpload(surface(), "app")
	<-sub.C()
	st := <-sub.C()
	assert.Equal(t, status.Failed, st.Kind)
	assert.Equal(t, "no client", st.Message)
}
