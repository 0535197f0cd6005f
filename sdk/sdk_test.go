package sdk

import (
	"context"
	"image"
	"testing"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWM struct{}

func (nopWM) DisplayMetrics() overlay.DisplayMetrics {
	return overlay.DisplayMetrics{WidthPx: 640, HeightPx: 480, Density: 1}
}
func (nopWM) AddView(*overlay.ControlView, overlay.LayoutParams) error          { return nil }
func (nopWM) UpdateViewLayout(*overlay.ControlView, overlay.LayoutParams) error { return nil }
func (nopWM) RemoveView(*overlay.ControlView) error                             { return nil }

func testHost(t *testing.T, opened *int) Host {
	cfg := config.Defaults()
	cfg.Capture.CacheDir = t.TempDir()
	return Host{
		Config: cfg,
		Platform: service.PlatformFunc(func(overlay.UI) (service.Host, error) {
			*opened++
			return service.Host{WindowManager: nopWM{}, Notifier: overlay.NotifierFunc(func(string) {})}, nil
		}),
	}
}

func TestOverlayLifecycle(t *testing.T) {
	t.Cleanup(func() { _ = StopOverlay() })
	opened := 0
	host := testHost(t, &opened)

	assert.False(t, IsRunning())
	RegisterCaptureTarget(capture.NewImageSurface(image.NewRGBA(image.Rect(0, 0, 4, 4)), image.Point{}))

	require.NoError(t, StartOverlay(context.Background(), host))
	require.NoError(t, StartOverlay(context.Background(), host))
	assert.True(t, IsRunning())
	assert.Equal(t, 1, opened)
	require.NotNil(t, Service())

	require.NoError(t, StopOverlay())
	require.NoError(t, StopOverlay())
	assert.False(t, IsRunning())
	assert.Nil(t, Service())
}
