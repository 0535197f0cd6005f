package overlay

import "fmt"

// Position is the top-left of the control window in screen pixels
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// DisplayMetrics describes the screen the control lives on
type DisplayMetrics struct {
	WidthPx  int
	HeightPx int
	Density  float64
}

// LayoutParams is what the platform needs to place the control window
type LayoutParams struct {
	X       int
	Y       int
	Width   int
	Height  int
	Visible bool
}

// Position returns the window origin
func (p LayoutParams) Position() Position {
	return Position{X: p.X, Y: p.Y}
}

// Geometry holds the control dimensions in density-independent pixels
type Geometry struct {
	FabSizeDp int
	PaddingDp int
	MarginDp  int
}

// DefaultGeometry is a 56dp button with 2dp padding kept 16dp off the screen edges
var DefaultGeometry = Geometry{FabSizeDp: 56, PaddingDp: 2, MarginDp: 16}

func dp(value int, density float64) int {
	if density <= 0 {
		density = 1
	}
	return int(float64(value) * density)
}

// FabSize returns the button diameter in pixels
func (g Geometry) FabSize(density float64) int {
	return dp(g.FabSizeDp, density)
}

// Padding returns the padding around the button in pixels
func (g Geometry) Padding(density float64) int {
	return dp(g.PaddingDp, density)
}

// ControlSize returns the side of the square control window in pixels
func (g Geometry) ControlSize(density float64) int {
	return g.FabSize(density) + 2*g.Padding(density)
}

// Margin returns the minimum distance to the screen edges in pixels
func (g Geometry) Margin(density float64) int {
	return dp(g.MarginDp, density)
}

// InitialPosition anchors the control at the bottom-right corner
func (g Geometry) InitialPosition(m DisplayMetrics) Position {
	size := g.ControlSize(m.Density)
	margin := g.Margin(m.Density)
	return Clamp(Position{
		X: m.WidthPx - size - margin,
		Y: m.HeightPx - size - margin,
	}, m, size, margin)
}

// Clamp keeps p inside [margin, screen - size - margin] on both axes. On a
// screen too small to honor both bounds the control sticks to the margin.
func Clamp(p Position, m DisplayMetrics, size, margin int) Position {
	return Position{
		X: clampAxis(p.X, margin, m.WidthPx-size-margin),
		Y: clampAxis(p.Y, margin, m.HeightPx-size-margin),
	}
}

func clampAxis(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
