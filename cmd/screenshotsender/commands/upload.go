package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/network"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/bryanchriswhite/ScreenShotSender/internal/upload"
	"github.com/bryanchriswhite/ScreenShotSender/internal/window"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Capture and upload one screenshot without the overlay",
	Long: `Run a single upload cycle: capture the main application window, resolve
the active flow for the configured identity and upload the screenshot.

The window is chosen the same way the overlay chooses it when no target is
registered, unless --window names one explicitly. Use 'screenshotsender windows'
to list the candidates.`,
	Example: `  # Upload the main window
  screenshotsender upload --identity com.example.app

  # Upload a specific window
  screenshotsender upload --window 0x3a00007`,
	RunE: runUpload,
}

var uploadWindow string

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadWindow, "window", "", "window ID to capture (decimal or 0x hex)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("upload")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := window.Open(displayName)
	if err != nil {
		return err
	}
	defer d.Close()

	target, err := pickWindow(d)
	if err != nil {
		return err
	}

	looper := dispatch.NewLooper("ui")
	defer looper.Quit()
	scope := dispatch.NewScope(ctx)
	defer func() {
		scope.Close()
		scope.Wait()
	}()

	clients := network.NewManagerWithOptions(network.OptionsFromConfig(cfg))
	defer clients.Clear()
	capturer := capture.NewCapturer(looper, cfg.Capture.CacheDir, cfg.Capture.ReservedTopPx)
	orch := upload.NewOrchestrator(upload.FromManager(clients), capturer, scope, upload.Options{
		RevertDelay: cfg.Upload.RevertDelay,
	})

	sub := orch.Statuses().Subscribe()
	defer sub.Close()

	if !orch.TriggerUpload(target, cfg.Identity) {
		return errors.New("upload could not be started")
	}

	for {
		select {
		case st, ok := <-sub.C():
			if !ok {
				return errors.New("status stream closed")
			}
			log.Debug().Str("status", st.String()).Msg("Status changed")
			switch st.Kind {
			case status.Succeeded:
				if receipt, ok := st.Payload.(upload.Receipt); ok {
					fmt.Printf("✅ Uploaded screenshot to flow %d\n", receipt.FlowID)
				} else {
					fmt.Println("✅ Uploaded screenshot")
				}
				return nil
			case status.Failed:
				return fmt.Errorf("upload failed: %s (code %d)", st.Message, st.Code)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pickWindow resolves --window or falls back to the main-window heuristic
func pickWindow(d *window.Display) (capture.Surface, error) {
	if uploadWindow != "" {
		id, err := strconv.ParseUint(uploadWindow, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid window ID %q: %w", uploadWindow, err)
		}
		return d.Surface(uint32(id)), nil
	}

	surface, err := overlay.NewHeuristicLocator(d, d.Excluded).Locate()
	if err != nil {
		return nil, fmt.Errorf("failed to find a window: %w", err)
	}
	if surface == nil {
		return nil, errors.New("no capturable window found")
	}
	return surface, nil
}
