// Package sdk is the host-facing entry point of the screenshot overlay. A host
// starts the overlay once, optionally registers the surface to capture, and
// stops it when done.
package sdk

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/metrics"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/service"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/bryanchriswhite/ScreenShotSender/internal/window"
)

// Types hosts implement or consume
type (
	Config        = config.Config
	Surface       = capture.Surface
	Status        = status.Status
	Platform      = service.Platform
	PlatformHost  = service.Host
	Notifications = service.Notifications
	Notification  = service.Notification
	WindowManager = overlay.WindowManager
	Notifier      = overlay.Notifier
)

// Host describes the embedding application
type Host struct {
	// Config defaults to config.Defaults() when nil
	Config *Config

	// Platform defaults to the X11 desktop
	Platform Platform

	Notifications Notifications
	Metrics       *metrics.UploadMetrics
}

var (
	mu      sync.Mutex
	current *service.Service
	target  Surface
)

// StartOverlay starts the overlay service for host. Calling it while running
// does nothing.
func StartOverlay(ctx context.Context, host Host) error {
	mu.Lock()
	defer mu.Unlock()

	if current != nil && current.IsRunning() {
		return nil
	}

	platform := host.Platform
	if platform == nil {
		platform = window.Platform{}
	}
	svc := service.New(service.Options{
		Config:        host.Config,
		Platform:      platform,
		Notifications: host.Notifications,
		Metrics:       host.Metrics,
	})
	if target != nil {
		svc.RegisterCaptureTarget(target)
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	current = svc
	return nil
}

// StopOverlay stops the running overlay, if any
func StopOverlay() error {
	mu.Lock()
	svc := current
	current = nil
	mu.Unlock()

	if svc == nil {
		return nil
	}
	return svc.Stop()
}

// IsRunning reports whether the overlay is up
func IsRunning() bool {
	mu.Lock()
	defer mu.Unlock()
	return current != nil && current.IsRunning()
}

// RegisterCaptureTarget sets the surface captured on tap. It applies to the
// running overlay and to later starts.
func RegisterCaptureTarget(surface Surface) {
	mu.Lock()
	defer mu.Unlock()
	target = surface
	if current != nil {
		current.RegisterCaptureTarget(surface)
	}
}

// Service returns the running service, nil when stopped
func Service() *service.Service {
	mu.Lock()
	defer mu.Unlock()
	return current
}
