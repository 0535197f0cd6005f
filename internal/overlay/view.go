package overlay

import (
	"image"
	"image/color"
	"math"
	"sync"
)

// Icon is the glyph shown on the button
type Icon int

const (
	IconUpload Icon = iota
	IconSpinner
	IconCheck
	IconAlert
)

func (i Icon) String() string {
	switch i {
	case IconUpload:
		return "upload"
	case IconSpinner:
		return "spinner"
	case IconCheck:
		return "check"
	case IconAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// FabState is everything that decides how the button looks
type FabState struct {
	Icon    Icon
	Tint    color.RGBA
	Loading bool
	Enabled bool
}

// The four button states
var (
	StateDefault = FabState{Icon: IconUpload, Tint: TintDefault, Enabled: true}
	StateLoading = FabState{Icon: IconSpinner, Tint: TintDefault, Loading: true, Enabled: false}
	StateSuccess = FabState{Icon: IconCheck, Tint: TintSuccess, Enabled: true}
	StateError   = FabState{Icon: IconAlert, Tint: TintError, Enabled: true}
)

// ControlView is the draggable button. It emulates a view group with one child:
// pointer events reach the button until the gesture detector intercepts a drag.
type ControlView struct {
	size    int
	fabSize int
	padding int

	mu         sync.Mutex
	state      FabState
	visible    bool
	phase      float64
	invalidate func()

	gestures    *GestureDetector
	onClick     func()
	intercepted bool
	childTarget bool
	pressed     bool
}

// NewControlView creates a view of side size with a button of diameter fabSize
func NewControlView(size, fabSize, padding int, gestures *GestureDetector, onClick func()) *ControlView {
	return &ControlView{
		size:     size,
		fabSize:  fabSize,
		padding:  padding,
		state:    StateDefault,
		visible:  true,
		gestures: gestures,
		onClick:  onClick,
	}
}

// Size returns the side of the square view
func (v *ControlView) Size() int {
	return v.size
}

// State returns the current button state
func (v *ControlView) State() FabState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetState changes the button state and asks the platform to redraw
func (v *ControlView) SetState(s FabState) {
	v.mu.Lock()
	changed := v.state != s
	v.state = s
	v.mu.Unlock()
	if changed {
		v.Invalidate()
	}
}

// Visible reports whether the view should be drawn
func (v *ControlView) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// SetVisible shows or hides the view
func (v *ControlView) SetVisible(visible bool) {
	v.mu.Lock()
	v.visible = visible
	v.mu.Unlock()
}

// SetInvalidateFunc installs the platform redraw hook
func (v *ControlView) SetInvalidateFunc(fn func()) {
	v.mu.Lock()
	v.invalidate = fn
	v.mu.Unlock()
}

// Invalidate requests a redraw
func (v *ControlView) Invalidate() {
	v.mu.Lock()
	fn := v.invalidate
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Tick advances the spinner animation. Returns true when a redraw is needed.
func (v *ControlView) Tick() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.state.Loading {
		return false
	}
	v.phase = math.Mod(v.phase+math.Pi/8, 2*math.Pi)
	return true
}

// Render draws the view into img, which must be at least Size() square
func (v *ControlView) Render(img *image.RGBA) {
	v.mu.Lock()
	state := v.state
	visible := v.visible
	phase := v.phase
	v.mu.Unlock()

	// Clear to transparent
	for i := range img.Pix {
		img.Pix[i] = 0
	}
	if !visible {
		return
	}

	origin := img.Bounds().Min
	r := float64(v.fabSize) / 2
	cx := float64(origin.X+v.padding) + r
	cy := float64(origin.Y+v.padding) + r

	fillCircle(img, cx, cy, r, state.Tint)

	glyph := image.NewRGBA(img.Bounds())
	drawGlyph(glyph, state.Icon, cx, cy, float64(v.fabSize)*0.5, phase)

	opacity := 1.0
	if !state.Enabled && !state.Loading {
		opacity = 0.5
	}
	BlendImage(img, glyph, origin.X, origin.Y, opacity)
}

// ButtonCircle returns the button's center and radius in view coordinates
func (v *ControlView) ButtonCircle() (cx, cy, r float64) {
	r = float64(v.fabSize) / 2
	return float64(v.padding) + r, float64(v.padding) + r, r
}

func (v *ControlView) hitsButton(ev MotionEvent) bool {
	cx, cy, r := v.ButtonCircle()
	return math.Hypot(ev.X-cx, ev.Y-cy) <= r
}

// Dispatch routes one pointer event through interception, the button and the
// drag handler. Must run on the UI context.
func (v *ControlView) Dispatch(ev MotionEvent) bool {
	if ev.Action == ActionDown {
		v.intercepted = v.gestures.OnInterceptTouch(ev)
		v.childTarget = !v.intercepted && v.hitsButton(ev)
		if v.childTarget {
			v.pressed = v.State().Enabled
			return true
		}
		return v.gestures.OnTouch(ev)
	}

	end := ev.Action == ActionUp || ev.Action == ActionCancel
	defer func() {
		if end {
			v.gestures.Reset()
			v.intercepted = false
			v.childTarget = false
			v.pressed = false
		}
	}()

	if !v.intercepted && v.gestures.OnInterceptTouch(ev) {
		// The button loses the gesture
		v.intercepted = true
		v.pressed = false
		return true
	}

	if v.intercepted || !v.childTarget {
		return v.gestures.OnTouch(ev)
	}

	// The button owns the gesture
	if ev.Action == ActionUp && v.pressed && v.State().Enabled && !v.gestures.State().Dragging {
		if v.onClick != nil {
			v.onClick()
		}
	}
	return true
}
