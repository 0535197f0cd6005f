// Package window is the X11 desktop platform: it hosts the overlay window,
// turns pointer events into gestures, captures windows as surfaces and lists
// top-level windows for the capture-target search.
package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
)

// Display is one X11 connection shared by the overlay, the toaster, capture
// surfaces and window enumeration
type Display struct {
	conn   *xgb.Conn
	setup  *xproto.SetupInfo
	screen *xproto.ScreenInfo
	root   xproto.Window
	format pixelFormat

	atomMu sync.Mutex
	atoms  map[string]xproto.Atom

	handlerMu sync.RWMutex
	handlers  map[xproto.Window]func(xgb.Event)

	closeOnce sync.Once
	done      chan struct{}
}

// Open connects to the named X display. An empty name uses $DISPLAY.
func Open(name string) (*Display, error) {
	conn, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	format, err := formatFor(setup, screen.RootDepth)
	if err != nil {
		conn.Close()
		return nil, err
	}

	d := &Display{
		conn:     conn,
		setup:    setup,
		screen:   screen,
		root:     screen.Root,
		format:   format,
		atoms:    make(map[string]xproto.Atom),
		handlers: make(map[xproto.Window]func(xgb.Event)),
		done:     make(chan struct{}),
	}
	go d.eventLoop()

	logger.WithComponent("x11").Info().
		Int("width", int(screen.WidthInPixels)).
		Int("height", int(screen.HeightInPixels)).
		Uint8("depth", screen.RootDepth).
		Msg("Connected to X server")
	return d, nil
}

// Close drops the connection. Safe to call more than once.
func (d *Display) Close() error {
	d.closeOnce.Do(func() {
		d.conn.Close()
		<-d.done
	})
	return nil
}

// DisplayMetrics reports the screen size and a density derived from its DPI
func (d *Display) DisplayMetrics() overlay.DisplayMetrics {
	return overlay.DisplayMetrics{
		WidthPx:  int(d.screen.WidthInPixels),
		HeightPx: int(d.screen.HeightInPixels),
		Density:  densityFor(int(d.screen.WidthInPixels), int(d.screen.WidthInMillimeters)),
	}
}

// densityFor maps the physical DPI onto a scale where 96 DPI is 1. Screens that
// report no physical size, or a tiny one, get 1.
func densityFor(widthPx, widthMM int) float64 {
	if widthPx <= 0 || widthMM <= 0 {
		return 1
	}
	dpi := float64(widthPx) / (float64(widthMM) / 25.4)
	density := dpi / 96
	if density < 1 {
		return 1
	}
	return density
}

// Owns reports whether id is a window created by this process
func (d *Display) Owns(id uint32) bool {
	d.handlerMu.RLock()
	defer d.handlerMu.RUnlock()
	_, ok := d.handlers[xproto.Window(id)]
	return ok
}

func (d *Display) handle(win xproto.Window, fn func(xgb.Event)) {
	d.handlerMu.Lock()
	d.handlers[win] = fn
	d.handlerMu.Unlock()
}

func (d *Display) unhandle(win xproto.Window) {
	d.handlerMu.Lock()
	delete(d.handlers, win)
	d.handlerMu.Unlock()
}

// eventLoop routes events to the window that registered for them
func (d *Display) eventLoop() {
	defer close(d.done)
	log := logger.WithComponent("x11")

	for {
		ev, err := d.conn.WaitForEvent()
		if ev == nil && err == nil {
			log.Debug().Msg("X connection closed, event loop exiting")
			return
		}
		if err != nil {
			log.Debug().Err(err).Msg("X error")
			continue
		}

		win, ok := eventWindow(ev)
		if !ok {
			continue
		}
		d.handlerMu.RLock()
		fn := d.handlers[win]
		d.handlerMu.RUnlock()
		if fn != nil {
			fn(ev)
		}
	}
}

func eventWindow(ev xgb.Event) (xproto.Window, bool) {
	switch e := ev.(type) {
	case xproto.ExposeEvent:
		return e.Window, true
	case xproto.ButtonPressEvent:
		return e.Event, true
	case xproto.ButtonReleaseEvent:
		return e.Event, true
	case xproto.MotionNotifyEvent:
		return e.Event, true
	}
	return 0, false
}

// createPopup creates an unmanaged window with a GC for painting
func (d *Display) createPopup(x, y, width, height int, eventMask uint32, title string) (xproto.Window, xproto.Gcontext, error) {
	win, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create window ID: %w", err)
	}

	// Values follow the bit order of the mask
	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{0x000000, 1, eventMask}

	err = xproto.CreateWindowChecked(
		d.conn,
		d.screen.RootDepth,
		win,
		d.root,
		int16(x), int16(y),
		uint16(width), uint16(height),
		0,
		xproto.WindowClassInputOutput,
		d.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create window: %w", err)
	}

	if err := d.setWindowTitle(win, title); err != nil {
		logger.WithComponent("x11").Warn().Err(err).Msg("Failed to set window title")
	}
	if err := d.setWindowClass(win, "screenshotsender", "ScreenShotSender"); err != nil {
		logger.WithComponent("x11").Warn().Err(err).Msg("Failed to set window class")
	}

	gc, err := xproto.NewGcontextId(d.conn)
	if err != nil {
		xproto.DestroyWindow(d.conn, win)
		return 0, 0, fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(d.conn, gc, xproto.Drawable(win), 0, nil).Check(); err != nil {
		xproto.DestroyWindow(d.conn, win)
		return 0, 0, fmt.Errorf("failed to create GC: %w", err)
	}
	return win, gc, nil
}

func (d *Display) destroyPopup(win xproto.Window, gc xproto.Gcontext) {
	d.unhandle(win)
	xproto.FreeGC(d.conn, gc)
	xproto.DestroyWindow(d.conn, win)
	d.conn.Sync()
}

func (d *Display) setWindowTitle(win xproto.Window, title string) error {
	titleAtom, err := d.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := d.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(d.conn, xproto.PropModeReplace, win,
		titleAtom, utf8Atom, 8, uint32(len(title)), []byte(title)).Check()
}

// setWindowClass writes WM_CLASS as instance\0class\0
func (d *Display) setWindowClass(win xproto.Window, instance, class string) error {
	value := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(d.conn, xproto.PropModeReplace, win,
		xproto.AtomWmClass, xproto.AtomString, 8, uint32(len(value)), []byte(value)).Check()
}

// atom interns name, caching the result
func (d *Display) atom(name string) (xproto.Atom, error) {
	d.atomMu.Lock()
	defer d.atomMu.Unlock()

	if a, ok := d.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern atom %s: %w", name, err)
	}
	d.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (d *Display) property(win xproto.Window, name string) ([]byte, error) {
	a, err := d.atom(name)
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(d.conn, false, win, a, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, err
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("property %s is empty", name)
	}
	return reply.Value, nil
}

// windowTitle prefers the UTF-8 EWMH title over WM_NAME
func (d *Display) windowTitle(win xproto.Window) string {
	if v, err := d.property(win, "_NET_WM_NAME"); err == nil {
		return string(v)
	}
	if v, err := d.property(win, "WM_NAME"); err == nil {
		return string(v)
	}
	return ""
}

// windowClass returns the class half of WM_CLASS, or the instance when the class is empty
func (d *Display) windowClass(win xproto.Window) string {
	v, err := d.property(win, "WM_CLASS")
	if err != nil {
		return ""
	}
	parts := strings.Split(string(v), "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}
