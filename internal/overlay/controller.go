// Package overlay implements the floating screenshot button: its rendering, drag
// handling, and the link between taps and upload cycles.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
)

var (
	// ErrNotShown is returned by operations that need the control on screen
	ErrNotShown = errors.New("overlay not shown")
	// ErrNoTarget means no surface was available to capture
	ErrNoTarget = errors.New("no capture target")
	// ErrUploadInProgress means another upload cycle is still running
	ErrUploadInProgress = errors.New("upload already in progress")
)

// WindowManager is the platform that hosts the control window
type WindowManager interface {
	DisplayMetrics() DisplayMetrics
	AddView(view *ControlView, params LayoutParams) error
	UpdateViewLayout(view *ControlView, params LayoutParams) error
	RemoveView(view *ControlView) error
}

// UI is the context all view work runs on
type UI interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) dispatch.Timer
}

// Uploader starts upload cycles and publishes their status
type Uploader interface {
	TriggerUpload(surface capture.Surface, identity string) bool
	Statuses() status.Reader
}

// Options tunes a Controller
type Options struct {
	Geometry      Geometry
	Density       float64 // overrides the platform density when > 0
	DragThreshold int
	ResetDelay    time.Duration

	// Identity names the host application for upload target resolution
	Identity func() string

	// OnPositionChanged is called after every drag step with the clamped position
	OnPositionChanged func(Position)
}

// Controller owns the control window. Every method except IsShown and Position
// must run on the UI context.
type Controller struct {
	ui       UI
	wm       WindowManager
	uploader Uploader
	locator  TargetLocator
	notifier Notifier
	opts     Options

	view    *ControlView
	params  LayoutParams
	metrics DisplayMetrics
	sub     *status.Subscription
	reset   dispatch.Timer

	shown atomic.Bool
	posMu sync.RWMutex
	pos   Position
}

// NewController creates a controller. Nothing is shown until ShowOverlay.
func NewController(ui UI, wm WindowManager, uploader Uploader, locator TargetLocator, notifier Notifier, opts Options) *Controller {
	if opts.Geometry == (Geometry{}) {
		opts.Geometry = DefaultGeometry
	}
	if opts.DragThreshold <= 0 {
		opts.DragThreshold = DefaultDragThreshold
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = 3 * time.Second
	}
	if opts.Identity == nil {
		opts.Identity = func() string { return "" }
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Controller{
		ui:       ui,
		wm:       wm,
		uploader: uploader,
		locator:  locator,
		notifier: notifier,
		opts:     opts,
	}
}

// IsShown reports whether the control is on screen. Safe from any goroutine.
func (c *Controller) IsShown() bool {
	return c.shown.Load()
}

// Position returns the last known window origin. Safe from any goroutine.
func (c *Controller) Position() Position {
	c.posMu.RLock()
	defer c.posMu.RUnlock()
	return c.pos
}

// View returns the control view, nil when hidden
func (c *Controller) View() *ControlView {
	return c.view
}

// ShowOverlay adds the control anchored at the bottom-right corner. Calling it
// while shown does nothing.
func (c *Controller) ShowOverlay() error {
	if c.shown.Load() {
		return nil
	}
	log := logger.WithComponent("overlay")

	metrics := c.wm.DisplayMetrics()
	if c.opts.Density > 0 {
		metrics.Density = c.opts.Density
	}
	if metrics.Density <= 0 {
		metrics.Density = 1
	}

	g := c.opts.Geometry
	size := g.ControlSize(metrics.Density)
	pos := g.InitialPosition(metrics)

	gestures := NewGestureDetector(c.opts.DragThreshold, c.Position, c.moveTo, c.onClick)
	view := NewControlView(size, g.FabSize(metrics.Density), g.Padding(metrics.Density), gestures, c.onClick)
	params := LayoutParams{X: pos.X, Y: pos.Y, Width: size, Height: size, Visible: true}

	if err := c.wm.AddView(view, params); err != nil {
		log.Error().Err(err).Msg("Failed to show overlay")
		c.notifier.Notice(fmt.Sprintf("Error showing overlay %v", err))
		return fmt.Errorf("failed to add overlay view: %w", err)
	}

	c.view = view
	c.params = params
	c.metrics = metrics
	c.setPosition(pos)
	c.shown.Store(true)
	c.observe()

	log.Info().
		Int("size", size).
		Int("x", pos.X).
		Int("y", pos.Y).
		Float64("density", metrics.Density).
		Msg("Overlay shown")
	return nil
}

// HideOverlay removes the control. Calling it while hidden does nothing.
func (c *Controller) HideOverlay() error {
	if !c.shown.Load() {
		return nil
	}

	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	c.cancelReset()

	view := c.view
	c.view = nil
	c.shown.Store(false)

	if err := c.wm.RemoveView(view); err != nil {
		c.notifier.Notice(fmt.Sprintf("Error while hiding overlay %v", err))
		return fmt.Errorf("failed to remove overlay view: %w", err)
	}
	logger.WithComponent("overlay").Info().Msg("Overlay hidden")
	return nil
}

// observe forwards every status to the UI context in emission order
func (c *Controller) observe() {
	sub := c.uploader.Statuses().Subscribe()
	c.sub = sub
	go func() {
		for st := range sub.C() {
			st := st
			if !c.ui.Post(func() { c.render(sub, st) }) {
				return
			}
		}
	}()
}

func (c *Controller) render(sub *status.Subscription, st status.Status) {
	// Drop statuses queued before a hide or for an older show
	if c.sub != sub || c.view == nil {
		return
	}
	c.cancelReset()

	switch st.Kind {
	case status.InProgress:
		c.view.SetState(StateLoading)
	case status.Succeeded:
		c.view.SetState(StateSuccess)
		c.notifier.Notice(NoticeUploadSucceeded)
		c.scheduleReset()
	case status.Failed:
		c.view.SetState(StateError)
		c.notifier.Notice(FailureNotice(st.Message, st.Code))
		c.scheduleReset()
	default:
		c.view.SetState(StateDefault)
	}
}

// FailureNotice formats the message shown for a failed upload
func FailureNotice(message string, code int) string {
	return fmt.Sprintf("Upload failed: %s (code %d)", message, code)
}

func (c *Controller) scheduleReset() {
	view := c.view
	c.reset = c.ui.AfterFunc(c.opts.ResetDelay, func() {
		if c.view == view && view != nil {
			view.SetState(StateDefault)
		}
	})
}

func (c *Controller) cancelReset() {
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
}

// moveTo clamps p to the screen and moves the window there
func (c *Controller) moveTo(p Position) {
	if c.view == nil {
		return
	}
	clamped := Clamp(p, c.metrics, c.params.Width, c.opts.Geometry.Margin(c.metrics.Density))
	c.params.X = clamped.X
	c.params.Y = clamped.Y

	if err := c.wm.UpdateViewLayout(c.view, c.params); err != nil {
		logger.WithComponent("overlay").Warn().Err(err).Msg("Failed to move overlay")
		c.notifier.Notice(fmt.Sprintf("Error moving overlay %v", err))
		return
	}
	c.setPosition(clamped)
	if c.opts.OnPositionChanged != nil {
		c.opts.OnPositionChanged(clamped)
	}
}

func (c *Controller) setPosition(p Position) {
	c.posMu.Lock()
	c.pos = p
	c.posMu.Unlock()
}

// Dispatch feeds a pointer event to the control. Errors are reported as notices.
func (c *Controller) Dispatch(ev MotionEvent) {
	if c.view == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("overlay").Error().Interface("panic", r).Msg("Recovered panic in gesture handling")
			c.notifier.Notice(fmt.Sprintf("Error handling touch %v", r))
		}
	}()
	c.view.Dispatch(ev)
}

// Trigger starts an upload as if the button had been tapped. A missing target
// and a rejected start are reported both as notices and as errors.
func (c *Controller) Trigger() error {
	if c.view == nil {
		return ErrNotShown
	}
	return c.startUpload()
}

func (c *Controller) onClick() {
	_ = c.startUpload()
}

func (c *Controller) startUpload() error {
	log := logger.WithComponent("overlay")

	surface, err := c.locator.Locate()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to locate capture target")
		c.notifier.Notice(fmt.Sprintf("Unable to find root view %v", err))
	}
	if surface == nil {
		c.notifier.Notice(NoticeNoTarget)
		return ErrNoTarget
	}

	if !c.uploader.TriggerUpload(&concealingSurface{Surface: surface, c: c}, c.opts.Identity()) {
		log.Debug().Msg("Upload already in progress, tap ignored")
		return ErrUploadInProgress
	}
	return nil
}

// setVisible hides or restores the control window around a capture
func (c *Controller) setVisible(visible bool) {
	if c.view == nil {
		return
	}
	c.view.SetVisible(visible)
	c.params.Visible = visible
	if err := c.wm.UpdateViewLayout(c.view, c.params); err != nil {
		logger.WithComponent("overlay").Warn().Err(err).Bool("visible", visible).Msg("Failed to toggle overlay visibility")
		c.notifier.Notice(fmt.Sprintf("Error updating overlay %v", err))
	}
}

// concealingSurface keeps the control out of its own screenshots. Draw runs on
// the UI context, so hiding and restoring bracket the draw exactly.
type concealingSurface struct {
	capture.Surface
	c *Controller
}

func (s *concealingSurface) Draw(dst draw.Image, offset image.Point) error {
	s.c.setVisible(false)
	defer s.c.setVisible(true)
	return s.Surface.Draw(dst, offset)
}
