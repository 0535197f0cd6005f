package overlay

import "math"

// Action is the phase of a pointer event
type Action int

const (
	ActionDown Action = iota
	ActionMove
	ActionUp
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionDown:
		return "down"
	case ActionMove:
		return "move"
	case ActionUp:
		return "up"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// MotionEvent is a pointer event. RawX/RawY are screen coordinates, X/Y are
// relative to the control window.
type MotionEvent struct {
	Action Action
	RawX   float64
	RawY   float64
	X      float64
	Y      float64
}

// DefaultDragThreshold is how far the pointer must travel before a press becomes a drag
const DefaultDragThreshold = 10

// GestureState lives for one down..up sequence
type GestureState struct {
	OriginTouchX float64
	OriginTouchY float64
	OriginPos    Position
	OffsetX      float64
	OffsetY      float64
	Dragging     bool
	Active       bool
}

// GestureDetector tells taps from drags on the control
type GestureDetector struct {
	threshold float64
	state     GestureState

	position func() Position
	move     func(Position)
	click    func()
}

// NewGestureDetector creates a detector. position reports the current window
// origin, move receives unclamped drag targets, click fires on a tap.
func NewGestureDetector(threshold int, position func() Position, move func(Position), click func()) *GestureDetector {
	if threshold <= 0 {
		threshold = DefaultDragThreshold
	}
	return &GestureDetector{
		threshold: float64(threshold),
		position:  position,
		move:      move,
		click:     click,
	}
}

// State returns a copy of the current gesture state
func (g *GestureDetector) State() GestureState {
	return g.state
}

// OnInterceptTouch observes events before the button sees them. It returns true
// once the gesture turns into a drag, after which events go to OnTouch.
func (g *GestureDetector) OnInterceptTouch(ev MotionEvent) bool {
	switch ev.Action {
	case ActionDown:
		origin := g.position()
		g.state = GestureState{
			OriginTouchX: ev.RawX,
			OriginTouchY: ev.RawY,
			OriginPos:    origin,
			OffsetX:      ev.RawX - float64(origin.X),
			OffsetY:      ev.RawY - float64(origin.Y),
			Active:       true,
		}
		return false

	case ActionMove:
		if !g.state.Active || g.state.Dragging {
			return false
		}
		dx := math.Abs(ev.RawX - g.state.OriginTouchX)
		dy := math.Abs(ev.RawY - g.state.OriginTouchY)
		if dx > g.threshold || dy > g.threshold {
			g.state.Dragging = true
			return true
		}
	}
	return false
}

// OnTouch handles events once intercepted
func (g *GestureDetector) OnTouch(ev MotionEvent) bool {
	switch ev.Action {
	case ActionDown:
		return true

	case ActionMove:
		if g.state.Dragging {
			g.move(Position{
				X: int(ev.RawX - g.state.OffsetX),
				Y: int(ev.RawY - g.state.OffsetY),
			})
		}
		return true

	case ActionUp, ActionCancel:
		tapped := !g.state.Dragging
		g.Reset()
		if tapped && g.click != nil {
			g.click()
		}
		return true
	}
	return false
}

// Reset clears the gesture
func (g *GestureDetector) Reset() {
	g.state = GestureState{}
}
