package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/api"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/metrics"
	"github.com/bryanchriswhite/ScreenShotSender/internal/service"
	"github.com/bryanchriswhite/ScreenShotSender/internal/window"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Show the floating screenshot button",
	Long: `Show the floating screenshot button and keep it running until interrupted
or stopped through the control API.

Tap the button to capture the main application window and upload it to the
active flow of the configured identity. Drag it to move it out of the way.`,
	Example: `  # Run with the identity from the config file
  screenshotsender serve

  # Run for a specific application against a local collector
  screenshotsender serve --identity com.example.app --base-url http://localhost:8000/api/

  # Run with debug logging and the control API on another port
  screenshotsender serve --log-level debug --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// stopSignal turns the notification's cancellation into a process exit signal
type stopSignal struct {
	service.Notifications
	done chan struct{}
	once sync.Once
}

func (s *stopSignal) Cancel() {
	s.Notifications.Cancel()
	s.once.Do(func() { close(s.done) })
}

// desktopNotifications prefers the desktop notification daemon and falls back
// to the log when no session bus is reachable
func desktopNotifications() (service.Notifications, func()) {
	n, err := window.NewDesktopNotifications()
	if err != nil {
		logger.WithComponent("serve").Warn().Err(err).Msg("Desktop notifications unavailable, logging instead")
		return service.LogNotifications{}, func() {}
	}
	return n, func() { _ = n.Close() }
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("identity", cfg.Identity).
		Str("base_url", cfg.Collector.BaseURL).
		Msg("Configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewUploadMetrics()
	inner, closeNotifications := desktopNotifications()
	defer closeNotifications()
	notifications := &stopSignal{Notifications: inner, done: make(chan struct{})}
	svc := service.New(service.Options{
		Config:        cfg,
		Platform:      window.Platform{DisplayName: displayName},
		Notifications: notifications,
		Metrics:       m,
	})
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start overlay: %w", err)
	}
	defer svc.Stop()

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(svc, configMgr, m, cfg.API)
		go func() {
			if err := server.Start(cfg.API.Port); err != nil {
				log.Error().Err(err).Msg("Control API stopped")
			}
		}()
	}

	fmt.Println()
	log.Info().Msg("✅ ScreenShotSender is running!")
	if server != nil {
		log.Info().Msgf("   - Control API: http://127.0.0.1:%d/api", cfg.API.Port)
		log.Info().Msgf("   - Metrics: http://127.0.0.1:%d/metrics", cfg.API.Port)
	}
	log.Info().Msg("   - Press Ctrl+C to stop")
	fmt.Println()

	select {
	case <-ctx.Done():
	case <-notifications.done:
	}

	log.Info().Msg("Shutting down gracefully...")
	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Control API shutdown failed")
		}
	}
	return nil
}
