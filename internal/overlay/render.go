package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Button tints
var (
	TintDefault = color.RGBA{R: 0x00, G: 0x99, B: 0xcc, A: 0xff}
	TintSuccess = color.RGBA{R: 0x66, G: 0x99, B: 0x00, A: 0xff}
	TintError   = color.RGBA{R: 0xcc, G: 0x00, B: 0x00, A: 0xff}

	glyphColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// BlendImage blends src onto dst at (x, y) with the given opacity, clipping to dst
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	srcBounds := src.Bounds()
	dstBounds := dst.Bounds()

	for sy := srcBounds.Min.Y; sy < srcBounds.Max.Y; sy++ {
		dy := y + (sy - srcBounds.Min.Y)
		if dy < dstBounds.Min.Y || dy >= dstBounds.Max.Y {
			continue
		}

		for sx := srcBounds.Min.X; sx < srcBounds.Max.X; sx++ {
			dx := x + (sx - srcBounds.Min.X)
			if dx < dstBounds.Min.X || dx >= dstBounds.Max.X {
				continue
			}

			sr, sg, sb, sa := src.At(sx, sy).RGBA()
			alpha := float64(sa) * opacity / 65535.0
			if alpha <= 0 {
				continue
			}

			dr, dg, db, da := dst.At(dx, dy).RGBA()
			dstAlpha := float64(da) / 65535.0

			// src colors are premultiplied
			outAlpha := alpha + dstAlpha*(1-alpha)
			if outAlpha <= 0 {
				continue
			}
			blend := func(s, d uint32) uint8 {
				v := float64(s)/65535.0*opacity + float64(d)/65535.0*(1-alpha)
				return uint8(math.Min(v, 1) * 255)
			}
			dst.SetRGBA(dx, dy, color.RGBA{
				R: blend(sr, dr),
				G: blend(sg, dg),
				B: blend(sb, db),
				A: uint8(outAlpha * 255),
			})
		}
	}
}

// bezierCircle is the control point distance for a quarter circle of radius 1
const bezierCircle = 0.5522847498

// shape accumulates filled sub-paths and paints them onto dst in one pass.
// Sub-paths are all wound the same way so overlaps saturate instead of cancelling.
type shape struct {
	dst    *image.RGBA
	origin image.Point
	z      *vector.Rasterizer
}

func newShape(dst *image.RGBA) *shape {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	return &shape{dst: dst, origin: b.Min, z: z}
}

func (s *shape) pt(x, y float64) (float32, float32) {
	return float32(x - float64(s.origin.X)), float32(y - float64(s.origin.Y))
}

func (s *shape) moveTo(x, y float64) { s.z.MoveTo(s.pt(x, y)) }
func (s *shape) lineTo(x, y float64) { s.z.LineTo(s.pt(x, y)) }

func (s *shape) cubeTo(bx, by, cx, cy, dx, dy float64) {
	x0, y0 := s.pt(bx, by)
	x1, y1 := s.pt(cx, cy)
	x2, y2 := s.pt(dx, dy)
	s.z.CubeTo(x0, y0, x1, y1, x2, y2)
}

// circle adds a disc made of four cubic quarter arcs
func (s *shape) circle(cx, cy, r float64) {
	if r <= 0 {
		return
	}
	k := r * bezierCircle
	s.moveTo(cx+r, cy)
	s.cubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	s.cubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	s.cubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	s.cubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	s.z.ClosePath()
}

// line adds a stroke of the given width with round caps
func (s *shape) line(x0, y0, x1, y1, width float64) {
	half := width / 2
	s.circle(x0, y0, half)
	s.circle(x1, y1, half)

	length := math.Hypot(x1-x0, y1-y0)
	if length == 0 {
		return
	}
	nx, ny := -(y1-y0)/length*half, (x1-x0)/length*half
	s.moveTo(x0+nx, y0+ny)
	s.lineTo(x0-nx, y0-ny)
	s.lineTo(x1-nx, y1-ny)
	s.lineTo(x1+nx, y1+ny)
	s.z.ClosePath()
}

// arc adds part of a ring from start to start+sweep radians with round caps
func (s *shape) arc(cx, cy, r, width, start, sweep float64) {
	half := width / 2
	steps := int(math.Max(8, r*sweep/2))
	at := func(radius, a float64) (float64, float64) {
		return cx + radius*math.Cos(a), cy + radius*math.Sin(a)
	}

	s.moveTo(at(r+half, start))
	for i := 1; i <= steps; i++ {
		s.lineTo(at(r+half, start+sweep*float64(i)/float64(steps)))
	}
	for i := steps; i >= 0; i-- {
		s.lineTo(at(r-half, start+sweep*float64(i)/float64(steps)))
	}
	s.z.ClosePath()

	x, y := at(r, start)
	s.circle(x, y, half)
	x, y = at(r, start+sweep)
	s.circle(x, y, half)
}

func (s *shape) fill(c color.RGBA) {
	s.z.Draw(s.dst, s.dst.Bounds(), image.NewUniform(c), image.Point{})
}

// fillCircle paints a solid anti-aliased disc
func fillCircle(dst *image.RGBA, cx, cy, r float64, c color.RGBA) {
	s := newShape(dst)
	s.circle(cx, cy, r)
	s.fill(c)
}

// drawGlyph paints icon centered in a box of side size
func drawGlyph(dst *image.RGBA, icon Icon, cx, cy, size float64, phase float64) {
	w := math.Max(2, size/12)
	h := size / 2
	s := newShape(dst)

	switch icon {
	case IconUpload:
		// Arrow over a tray
		s.line(cx, cy-h*0.45, cx, cy+h*0.2, w)
		s.line(cx, cy-h*0.45, cx-h*0.3, cy-h*0.15, w)
		s.line(cx, cy-h*0.45, cx+h*0.3, cy-h*0.15, w)
		s.line(cx-h*0.4, cy+h*0.45, cx+h*0.4, cy+h*0.45, w)

	case IconCheck:
		s.line(cx-h*0.4, cy, cx-h*0.1, cy+h*0.3, w)
		s.line(cx-h*0.1, cy+h*0.3, cx+h*0.45, cy-h*0.3, w)

	case IconAlert:
		// Bar and dot inside a ring
		s.arc(cx, cy, h*0.8, w*0.75, 0, 2*math.Pi)
		s.line(cx, cy-h*0.4, cx, cy+h*0.1, w)
		s.circle(cx, cy+h*0.38, w*0.6)

	case IconSpinner:
		s.arc(cx, cy, h*0.45, w, phase, 1.5*math.Pi)
	}
	s.fill(glyphColor)
}

// RenderNotice draws a transient message bubble sized to its text
func RenderNotice(text string) *image.RGBA {
	const padding = 8
	face := basicfont.Face7x13

	d := &font.Drawer{Face: face}
	textWidth := d.MeasureString(text).Ceil()
	metrics := face.Metrics()
	lineHeight := (metrics.Ascent + metrics.Descent).Ceil()

	img := image.NewRGBA(image.Rect(0, 0, textWidth+padding*2, lineHeight+padding*2))
	bg := image.NewRGBA(img.Bounds())
	draw.Draw(bg, bg.Bounds(), &image.Uniform{C: color.RGBA{R: 0x32, G: 0x32, B: 0x32, A: 0xff}}, image.Point{}, draw.Src)
	BlendImage(img, bg, 0, 0, 0.9)

	d.Dst = img
	d.Src = image.NewUniform(glyphColor)
	d.Dot = fixed.Point26_6{X: fixed.I(padding), Y: fixed.I(padding + metrics.Ascent.Ceil())}
	d.DrawString(text)
	return img
}
