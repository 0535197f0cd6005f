package network

import (
	"context"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inline struct{}

func (inline) Call(_ context.Context, fn func() error) error { return fn() }

func online() Connectivity  { return ConnectivityFunc(func() bool { return true }) }
func offline() Connectivity { return ConnectivityFunc(func() bool { return false }) }

func newTestClient(t *testing.T, srv *httptest.Server, probe Connectivity, res config.ResilienceConfig) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:      srv.URL + "/api/cd_training/",
		UserAgent:    "ScreenShotSender-test",
		Timeout:      5 * time.Second,
		Connectivity: probe,
		Resilience:   res,
	})
	require.NoError(t, err)
	return c
}

func testArtifact(t *testing.T) *capture.Artifact {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	c := capture.NewCapturer(inline{}, t.TempDir(), 0)
	art, err := c.Capture(context.Background(), capture.NewImageSurface(img, image.Point{}))
	require.NoError(t, err)
	return art
}

func TestResolveUploadTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/cd_training/active-flows/com.example.app/", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		assert.Equal(t, "ScreenShotSender-test", r.Header.Get(HeaderUserAgent))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"flowId":42}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, online(), config.ResilienceConfig{})
	r := c.ResolveUploadTarget(context.Background(), "com.example.app")
	require.True(t, r.OK())
	require.NotNil(t, r.Data.FlowID)
	assert.Equal(t, 42, *r.Data.FlowID)
}

func TestUploadScreenshotMultipart(t *testing.T) {
	art := testArtifact(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/cd_training/flows/42/live-screenshot/", r.URL.Path)

		file, header, err := r.FormFile("screenshot")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, art.Name, header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))

		data, _ := io.ReadAll(file)
		assert.NotEmpty(t, data)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, online(), config.ResilienceConfig{})
	r := c.UploadScreenshot(context.Background(), 42, art)
	assert.True(t, r.OK())
}

func TestOfflineNeverReachesServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, offline(), config.ResilienceConfig{})
	r := c.ResolveUploadTarget(context.Background(), "com.example.app")
	require.NotNil(t, r.Err)
	assert.Equal(t, CodeNoConnectivity, r.Err.Code)
	assert.Equal(t, "", r.Err.Message)
	assert.Equal(t, int32(0), hits.Load())
}

func TestServerErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, online(), config.ResilienceConfig{})
	r := c.ResolveUploadTarget(context.Background(), "missing")
	require.NotNil(t, r.Err)
	assert.Equal(t, "not found", r.Err.Message)
	assert.Equal(t, 404, r.Err.Code)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"boom"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, online(), config.ResilienceConfig{
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	for i := 0; i < 2; i++ {
		r := c.ResolveUploadTarget(context.Background(), "app")
		require.NotNil(t, r.Err)
		assert.Equal(t, "boom", r.Err.Message)
		assert.Equal(t, 500, r.Err.Code)
	}

	r := c.ResolveUploadTarget(context.Background(), "app")
	require.NotNil(t, r.Err)
	assert.Equal(t, CodeUnknown, r.Err.Code)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)

	_, err = NewClient(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestManagerBuildsOnceAndClears(t *testing.T) {
	var built atomic.Int32
	m := NewManager(func() (*Client, error) {
		built.Add(1)
		return NewClient(Options{BaseURL: "http://collector.test/"})
	})

	a, err := m.Get()
	require.NoError(t, err)
	b, err := m.Get()
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), built.Load())

	m.Clear()
	c, err := m.Get()
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, int32(2), built.Load())
}
