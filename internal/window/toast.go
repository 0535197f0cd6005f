package window

import (
	"image"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
)

// DefaultToastDuration matches a short platform toast
const DefaultToastDuration = 2 * time.Second

// toastBottomMargin keeps toasts clear of panels docked at the bottom edge
const toastBottomMargin = 64

// Toaster shows notices as a bubble near the bottom of the screen. A new notice
// replaces the one on screen.
type Toaster struct {
	d        *Display
	ui       overlay.UI
	duration time.Duration

	win  xproto.Window
	gc   xproto.Gcontext
	img  *image.RGBA
	hide dispatch.Timer
}

// NewToaster creates a toaster drawing on d from the UI context
func NewToaster(d *Display, ui overlay.UI, duration time.Duration) *Toaster {
	if duration <= 0 {
		duration = DefaultToastDuration
	}
	return &Toaster{d: d, ui: ui, duration: duration}
}

// Notice logs the message and shows it. Safe from any goroutine.
func (t *Toaster) Notice(message string) {
	logger.WithComponent("toast").Info().Str("notice", message).Msg("Notice")
	t.ui.Post(func() { t.show(message) })
}

func (t *Toaster) show(message string) {
	t.dismiss()
	log := logger.WithComponent("toast")

	img := overlay.RenderNotice(message)
	m := t.d.DisplayMetrics()
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w > m.WidthPx {
		w = m.WidthPx
	}
	x := (m.WidthPx - w) / 2
	y := m.HeightPx - h - toastBottomMargin
	if y < 0 {
		y = 0
	}

	win, gc, err := t.d.createPopup(x, y, w, h, xproto.EventMaskExposure, "ScreenShotSender notice")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create toast window")
		return
	}
	t.win, t.gc = win, gc
	t.img = img.SubImage(image.Rect(0, 0, w, h)).(*image.RGBA)

	t.d.handle(win, func(ev xgb.Event) {
		if e, ok := ev.(xproto.ExposeEvent); ok && e.Count == 0 {
			t.ui.Post(func() {
				if t.win == win {
					t.paint()
				}
			})
		}
	})
	if err := xproto.MapWindowChecked(t.d.conn, win).Check(); err != nil {
		log.Warn().Err(err).Msg("Failed to map toast window")
		t.dismiss()
		return
	}
	t.paint()
	t.hide = t.ui.AfterFunc(t.duration, t.dismiss)
}

func (t *Toaster) paint() {
	b := t.img.Bounds()
	err := xproto.PutImageChecked(
		t.d.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(t.win),
		t.gc,
		uint16(b.Dx()), uint16(b.Dy()),
		0, 0,
		0,
		t.d.format.depth,
		t.d.format.encode(t.img),
	).Check()
	if err != nil {
		logger.WithComponent("toast").Debug().Err(err).Msg("Failed to paint toast")
	}
}

// dismiss removes the current toast. Runs on the UI context.
func (t *Toaster) dismiss() {
	if t.hide != nil {
		t.hide.Stop()
		t.hide = nil
	}
	if t.win != 0 {
		t.d.destroyPopup(t.win, t.gc)
		t.win, t.gc, t.img = 0, 0, nil
	}
}

// Close removes any toast on screen. Must run on the UI context.
func (t *Toaster) Close() {
	t.dismiss()
}
