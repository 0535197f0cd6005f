package window

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
)

const spinnerFrame = 80 * time.Millisecond

// ErrViewAttached is returned when a second view is added to the same host
var ErrViewAttached = errors.New("a view is already attached")

// OverlayHost implements overlay.WindowManager with an override-redirect X window.
// All methods except the event callbacks run on the UI context.
type OverlayHost struct {
	d      *Display
	ui     overlay.UI
	shaped bool

	onEvent func(overlay.MotionEvent)

	view    *overlay.ControlView
	win     xproto.Window
	gc      xproto.Gcontext
	params  overlay.LayoutParams
	buf     *image.RGBA
	spinner dispatch.Timer
}

// NewOverlayHost creates a host on d. onEvent receives pointer events on the UI context.
func NewOverlayHost(d *Display, ui overlay.UI, onEvent func(overlay.MotionEvent)) *OverlayHost {
	h := &OverlayHost{d: d, ui: ui, onEvent: onEvent}
	if err := shape.Init(d.conn); err != nil {
		logger.WithComponent("x11").Warn().Err(err).Msg("Shape extension not available, overlay will be square")
	} else {
		h.shaped = true
	}
	return h
}

// SetEventHandler replaces the pointer event callback
func (h *OverlayHost) SetEventHandler(fn func(overlay.MotionEvent)) {
	h.onEvent = fn
}

// WindowID returns the overlay window id, zero when no view is attached
func (h *OverlayHost) WindowID() uint32 {
	return uint32(h.win)
}

func (h *OverlayHost) DisplayMetrics() overlay.DisplayMetrics {
	return h.d.DisplayMetrics()
}

func (h *OverlayHost) AddView(view *overlay.ControlView, params overlay.LayoutParams) error {
	if h.view != nil {
		return ErrViewAttached
	}

	const eventMask = xproto.EventMaskExposure |
		xproto.EventMaskButtonPress |
		xproto.EventMaskButtonRelease |
		xproto.EventMaskButton1Motion

	win, gc, err := h.d.createPopup(params.X, params.Y, params.Width, params.Height, eventMask, "ScreenShotSender")
	if err != nil {
		return err
	}

	h.view = view
	h.win = win
	h.gc = gc
	h.params = params
	h.buf = image.NewRGBA(image.Rect(0, 0, params.Width, params.Height))

	if h.shaped {
		cx, cy, r := view.ButtonCircle()
		spans := circleSpans(cx, cy, r, params.Width, params.Height)
		if err := shape.RectanglesChecked(h.d.conn, shape.SoSet, shape.SkBounding,
			xproto.ClipOrderingYXBanded, win, 0, 0, spans).Check(); err != nil {
			logger.WithComponent("x11").Warn().Err(err).Msg("Failed to shape overlay window")
		}
	}

	h.d.handle(win, h.handleEvent)
	view.SetVisible(params.Visible)
	view.SetInvalidateFunc(func() { h.ui.Post(h.paint) })

	if params.Visible {
		if err := xproto.MapWindowChecked(h.d.conn, win).Check(); err != nil {
			h.teardown()
			return fmt.Errorf("failed to map window: %w", err)
		}
	}
	h.paint()
	return nil
}

func (h *OverlayHost) UpdateViewLayout(view *overlay.ControlView, params overlay.LayoutParams) error {
	if h.view == nil || view != h.view {
		return overlay.ErrNotShown
	}

	if params.X != h.params.X || params.Y != h.params.Y {
		err := xproto.ConfigureWindowChecked(h.d.conn, h.win,
			xproto.ConfigWindowX|xproto.ConfigWindowY,
			[]uint32{uint32(int32(params.X)), uint32(int32(params.Y))}).Check()
		if err != nil {
			return fmt.Errorf("failed to move window: %w", err)
		}
	}

	if params.Visible != h.params.Visible {
		var err error
		if params.Visible {
			err = xproto.MapWindowChecked(h.d.conn, h.win).Check()
		} else {
			// Checked so the window is gone before a capture reads the screen
			err = xproto.UnmapWindowChecked(h.d.conn, h.win).Check()
		}
		if err != nil {
			return fmt.Errorf("failed to change window visibility: %w", err)
		}
	}

	h.params = params
	if params.Visible {
		h.paint()
	}
	return nil
}

func (h *OverlayHost) RemoveView(view *overlay.ControlView) error {
	if h.view == nil || view != h.view {
		return nil
	}
	h.teardown()
	return nil
}

func (h *OverlayHost) teardown() {
	if h.spinner != nil {
		h.spinner.Stop()
		h.spinner = nil
	}
	h.view.SetInvalidateFunc(nil)
	h.d.destroyPopup(h.win, h.gc)
	h.view = nil
	h.win = 0
	h.gc = 0
	h.buf = nil
}

// paint renders the view and pushes it to the window. Runs on the UI context.
func (h *OverlayHost) paint() {
	if h.view == nil || !h.params.Visible {
		return
	}

	h.view.Render(h.buf)
	data := h.d.format.encode(h.buf)
	err := xproto.PutImageChecked(
		h.d.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(h.win),
		h.gc,
		uint16(h.params.Width), uint16(h.params.Height),
		0, 0,
		0,
		h.d.format.depth,
		data,
	).Check()
	if err != nil {
		logger.WithComponent("x11").Warn().Err(err).Msg("Failed to paint overlay")
	}

	if h.spinner == nil && h.view.State().Loading {
		view := h.view
		h.spinner = h.ui.AfterFunc(spinnerFrame, func() {
			h.spinner = nil
			if h.view == view && view.Tick() {
				h.paint()
			}
		})
	}
}

// handleEvent runs on the X event goroutine
func (h *OverlayHost) handleEvent(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.ExposeEvent:
		if e.Count == 0 {
			h.ui.Post(h.paint)
		}
	case xproto.ButtonPressEvent:
		if e.Detail == xproto.ButtonIndex1 {
			h.post(overlay.ActionDown, e.RootX, e.RootY, e.EventX, e.EventY)
		}
	case xproto.MotionNotifyEvent:
		h.post(overlay.ActionMove, e.RootX, e.RootY, e.EventX, e.EventY)
	case xproto.ButtonReleaseEvent:
		if e.Detail == xproto.ButtonIndex1 {
			h.post(overlay.ActionUp, e.RootX, e.RootY, e.EventX, e.EventY)
		}
	}
}

func (h *OverlayHost) post(action overlay.Action, rootX, rootY, x, y int16) {
	ev := overlay.MotionEvent{
		Action: action,
		RawX:   float64(rootX),
		RawY:   float64(rootY),
		X:      float64(x),
		Y:      float64(y),
	}
	h.ui.Post(func() {
		if h.onEvent != nil && h.view != nil {
			h.onEvent(ev)
		}
	})
}

// circleSpans covers a circle with one rectangle per scanline for the window shape
func circleSpans(cx, cy, r float64, width, height int) []xproto.Rectangle {
	spans := make([]xproto.Rectangle, 0, height)
	for y := 0; y < height; y++ {
		dy := float64(y) + 0.5 - cy
		if math.Abs(dy) > r {
			continue
		}
		half := math.Sqrt(r*r - dy*dy)
		x0 := int(math.Floor(cx - half))
		x1 := int(math.Ceil(cx + half))
		if x0 < 0 {
			x0 = 0
		}
		if x1 > width {
			x1 = width
		}
		if x1 <= x0 {
			continue
		}
		spans = append(spans, xproto.Rectangle{X: int16(x0), Y: int16(y), Width: uint16(x1 - x0), Height: 1})
	}
	return spans
}
