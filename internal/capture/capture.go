package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/google/uuid"
)

// ErrCapture matches every *CaptureError via errors.Is
var ErrCapture = errors.New("capture failed")

// Surface is a drawable area of the host UI that can be rasterized
type Surface interface {
	// Size returns the surface size in pixels
	Size() (width, height int)

	// ScreenOrigin returns the top-left of the surface in screen coordinates
	ScreenOrigin() image.Point

	// Draw renders the surface into dst with the surface's top-left placed at offset
	Draw(dst draw.Image, offset image.Point) error
}

// UIRunner executes a function on the UI context and waits for it
type UIRunner interface {
	Call(ctx context.Context, fn func() error) error
}

// CaptureError describes why a capture produced no artifact
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture failed: %s", e.Op)
	}
	return fmt.Sprintf("capture failed: %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

func (e *CaptureError) Is(target error) bool {
	return target == ErrCapture
}

// EffectiveRect computes how much of the surface to keep when the top reserved
// strip of the screen (status bar) must be excluded. yOffset is the number of rows
// skipped from the top of the surface.
func EffectiveRect(height, screenY, reservedTop int) (yOffset, effectiveHeight int) {
	yOffset = reservedTop - screenY
	if yOffset < 0 {
		yOffset = 0
	}
	return yOffset, height - yOffset
}

// Capturer rasterizes surfaces into PNG artifacts
type Capturer struct {
	ui          UIRunner
	dir         string
	reservedTop int
	now         func() time.Time
}

// NewCapturer creates a capturer writing artifacts into dir. reservedTop is the
// height of the screen strip excluded from every capture.
func NewCapturer(ui UIRunner, dir string, reservedTop int) *Capturer {
	if reservedTop < 0 {
		reservedTop = 0
	}
	return &Capturer{
		ui:          ui,
		dir:         dir,
		reservedTop: reservedTop,
		now:         time.Now,
	}
}

// Dir returns the artifact directory
func (c *Capturer) Dir() string {
	return c.dir
}

// Capture draws the surface on the UI context and stores the result as a PNG on the
// caller's goroutine. It never panics; every failure is a *CaptureError.
func (c *Capturer) Capture(ctx context.Context, surface Surface) (artifact *Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = &CaptureError{Op: "draw", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if surface == nil {
		return nil, &CaptureError{Op: "surface", Err: errors.New("no surface")}
	}

	var img *image.RGBA
	drawErr := c.ui.Call(ctx, func() error {
		width, height := surface.Size()
		if width <= 0 || height <= 0 {
			return &CaptureError{Op: "measure", Err: fmt.Errorf("surface has no area (%dx%d)", width, height)}
		}

		yOffset, effHeight := EffectiveRect(height, surface.ScreenOrigin().Y, c.reservedTop)
		if effHeight <= 0 {
			return &CaptureError{Op: "measure", Err: fmt.Errorf("surface is covered by the reserved area (%dpx)", c.reservedTop)}
		}

		canvas := image.NewRGBA(image.Rect(0, 0, width, effHeight))
		if err := surface.Draw(canvas, image.Pt(0, -yOffset)); err != nil {
			return &CaptureError{Op: "draw", Err: err}
		}
		img = canvas
		return nil
	})
	if drawErr != nil {
		var ce *CaptureError
		if errors.As(drawErr, &ce) {
			return nil, ce
		}
		return nil, &CaptureError{Op: "draw", Err: drawErr}
	}

	return c.store(img)
}

func (c *Capturer) store(img *image.RGBA) (*Artifact, error) {
	log := logger.WithComponent("capture")

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return nil, &CaptureError{Op: "store", Err: err}
	}

	createdAt := c.now()
	name := fmt.Sprintf("screenshot_%d_%s.png", createdAt.UnixMilli(), uuid.NewString()[:8])
	path := filepath.Join(c.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, &CaptureError{Op: "store", Err: err}
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return nil, &CaptureError{Op: "encode", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, &CaptureError{Op: "store", Err: err}
	}

	bounds := img.Bounds()
	log.Debug().
		Str("path", path).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("Screenshot stored")

	return &Artifact{
		Path:      path,
		Name:      name,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		CreatedAt: createdAt,
	}, nil
}
