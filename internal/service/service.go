// Package service runs the overlay for a host application: it owns the UI and
// background contexts, the collector client and the persistent notification.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/config"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/metrics"
	"github.com/bryanchriswhite/ScreenShotSender/internal/network"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/bryanchriswhite/ScreenShotSender/internal/upload"
)

// ErrNotRunning is returned by operations that need a started service
var ErrNotRunning = errors.New("service not running")

const stopTimeout = 5 * time.Second

// Host is the platform side of a running overlay
type Host struct {
	WindowManager overlay.WindowManager
	Notifier      overlay.Notifier

	// Enumerator enables the best-effort target search. Optional.
	Enumerator overlay.Enumerator
	Exclude    func(overlay.Candidate) bool

	// Bind hands the controller to the platform on the UI context, for routing
	// pointer events. Optional.
	Bind func(*overlay.Controller)

	// Close releases platform resources on the UI context. Optional.
	Close func() error
}

// Platform opens a Host bound to the UI context
type Platform interface {
	Open(ui overlay.UI) (Host, error)
}

// PlatformFunc adapts a function to Platform
type PlatformFunc func(ui overlay.UI) (Host, error)

func (f PlatformFunc) Open(ui overlay.UI) (Host, error) { return f(ui) }

// Options configures a Service
type Options struct {
	Config        *config.Config
	Platform      Platform
	Notifications Notifications
	Metrics       *metrics.UploadMetrics

	// Connectivity and Transport override the collector client defaults
	Connectivity network.Connectivity
	Transport    http.RoundTripper
}

// Service is the overlay lifecycle. Start and Stop are idempotent.
type Service struct {
	cfg           *config.Config
	platform      Platform
	notifications Notifications
	metrics       *metrics.UploadMetrics
	netOpts       network.Options

	// Survive restarts
	registered overlay.RegisteredLocator
	identityMu sync.RWMutex
	identity   string

	mu       sync.Mutex
	running  bool
	looper   *dispatch.Looper
	scope    *dispatch.Scope
	clients  *network.Manager
	orch     *upload.Orchestrator
	ctrl     *overlay.Controller
	host     Host
	watch    *status.Subscription
	stopCtx  func() bool
	watchers sync.WaitGroup
}

// New creates a stopped service
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	if opts.Notifications == nil {
		opts.Notifications = LogNotifications{}
	}

	netOpts := network.OptionsFromConfig(cfg)
	if opts.Connectivity != nil {
		netOpts.Connectivity = opts.Connectivity
	}
	if opts.Transport != nil {
		netOpts.Transport = opts.Transport
	}

	return &Service{
		cfg:           cfg,
		platform:      opts.Platform,
		notifications: opts.Notifications,
		metrics:       opts.Metrics,
		netOpts:       netOpts,
		identity:      cfg.Identity,
	}
}

// IsRunning reports whether the overlay service is started
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RegisterCaptureTarget sets the surface captured on the next tap. It takes
// precedence over the best-effort search and survives restarts.
func (s *Service) RegisterCaptureTarget(surface capture.Surface) {
	s.registered.Register(surface)
}

// SetIdentity sets the application identity used to resolve the upload flow
func (s *Service) SetIdentity(identity string) {
	s.identityMu.Lock()
	s.identity = identity
	s.identityMu.Unlock()
}

// Identity returns the current application identity
func (s *Service) Identity() string {
	s.identityMu.RLock()
	defer s.identityMu.RUnlock()
	return s.identity
}

// Start builds the contexts, posts the notification and shows the overlay.
// The service stops when ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.platform == nil {
		return errors.New("no platform configured")
	}
	log := logger.WithComponent("service")

	looper := dispatch.NewLooper("ui")
	host, err := s.platform.Open(looper)
	if err != nil {
		looper.Quit()
		return fmt.Errorf("failed to open platform: %w", err)
	}

	scope := dispatch.NewScope(context.Background())
	clients := network.NewManagerWithOptions(s.netOpts)
	capturer := capture.NewCapturer(looper, s.cfg.Capture.CacheDir, s.cfg.Capture.ReservedTopPx)
	orch := upload.NewOrchestrator(upload.FromManager(clients), capturer, scope, upload.Options{
		RevertDelay: s.cfg.Upload.RevertDelay,
		Metrics:     s.metrics,
	})

	locator := overlay.ChainLocator{&s.registered}
	if host.Enumerator != nil {
		locator = append(locator, overlay.NewHeuristicLocator(host.Enumerator, host.Exclude))
	}

	ctrl := overlay.NewController(looper, host.WindowManager, orch, locator, host.Notifier, overlay.Options{
		Geometry: overlay.Geometry{
			FabSizeDp: s.cfg.Overlay.FabSizeDp,
			PaddingDp: s.cfg.Overlay.PaddingDp,
			MarginDp:  s.cfg.Overlay.MarginDp,
		},
		Density:       s.cfg.Overlay.Density,
		DragThreshold: s.cfg.Overlay.DragThresholdPx,
		ResetDelay:    s.cfg.Upload.RevertDelay,
		Identity:      s.Identity,
		OnPositionChanged: func(p overlay.Position) {
			log.Debug().Int("x", p.X).Int("y", p.Y).Msg("Overlay moved")
		},
	})

	err = looper.Call(ctx, func() error {
		if host.Bind != nil {
			host.Bind(ctrl)
		}
		return ctrl.ShowOverlay()
	})
	if err != nil {
		scope.Close()
		s.closeHost(looper, host)
		looper.Quit()
		return fmt.Errorf("failed to show overlay: %w", err)
	}

	s.looper = looper
	s.scope = scope
	s.clients = clients
	s.orch = orch
	s.ctrl = ctrl
	s.host = host
	s.running = true

	err = s.notifications.Show(Notification{
		Title: NotificationTitle,
		Text:  NotificationText,
		Actions: []Action{{
			Label: ActionStop,
			// Actions may fire on the UI context; stopping waits on it
			Run: func() { go func() { _ = s.Stop() }() },
		}},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to post notification")
	}
	s.forwardStatuses(orch.Statuses().Subscribe())

	s.stopCtx = context.AfterFunc(ctx, func() {
		log.Info().Msg("Host context done, stopping")
		_ = s.Stop()
	})

	log.Info().
		Str("base_url", s.cfg.Collector.BaseURL).
		Str("identity", s.Identity()).
		Msg("Overlay service started")
	return nil
}

func (s *Service) forwardStatuses(sub *status.Subscription) {
	s.watch = sub
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		for st := range sub.C() {
			s.notifications.Update(st)
		}
	}()
}

// Stop hides the overlay, cancels pending work, stops the UI context, drops the
// collector client and removes the notification
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	looper, scope, clients, orch, ctrl, host, watch, stopCtx := s.looper, s.scope, s.clients, s.orch, s.ctrl, s.host, s.watch, s.stopCtx
	s.looper, s.scope, s.clients, s.orch, s.ctrl, s.host, s.watch, s.stopCtx = nil, nil, nil, nil, nil, Host{}, nil, nil
	s.mu.Unlock()

	log := logger.WithComponent("service")
	if stopCtx != nil {
		stopCtx()
	}

	scope.Close()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := looper.Call(ctx, ctrl.HideOverlay); err != nil {
		log.Warn().Err(err).Msg("Failed to hide overlay")
	}
	scope.Wait()
	s.closeHost(looper, host)
	looper.Quit()

	clients.Clear()
	// Ends status streams held by API clients too
	orch.Close()
	watch.Close()
	s.watchers.Wait()
	s.notifications.Cancel()

	log.Info().Msg("Overlay service stopped")
	return nil
}

func (s *Service) closeHost(looper *dispatch.Looper, host Host) {
	if host.Close == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := looper.Call(ctx, host.Close); err != nil {
		logger.WithComponent("service").Warn().Err(err).Msg("Failed to close platform")
	}
}

// Status returns the current upload status. Idle when stopped.
func (s *Service) Status() status.Status {
	s.mu.Lock()
	orch := s.orch
	s.mu.Unlock()
	if orch == nil {
		return status.NewIdle(0)
	}
	return orch.Status()
}

// Subscribe streams upload statuses of the running session. The caller closes
// the subscription.
func (s *Service) Subscribe() (*status.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrNotRunning
	}
	return s.orch.Statuses().Subscribe(), nil
}

// Trigger starts an upload as if the control had been tapped
func (s *Service) Trigger(ctx context.Context) error {
	s.mu.Lock()
	looper, ctrl := s.looper, s.ctrl
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return looper.Call(ctx, ctrl.Trigger)
}

// Position returns the overlay position, zero when stopped
func (s *Service) Position() overlay.Position {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		return overlay.Position{}
	}
	return ctrl.Position()
}
