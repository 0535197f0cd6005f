package capture

import (
	"image"
	"image/draw"
	"sync"
)

// ImageSurface is a Surface backed by an in-memory image. Hosts that render
// off-screen register one of these; tests use it as a fake screen.
type ImageSurface struct {
	mu     sync.RWMutex
	img    image.Image
	origin image.Point
}

// NewImageSurface wraps img positioned at origin on screen
func NewImageSurface(img image.Image, origin image.Point) *ImageSurface {
	return &ImageSurface{img: img, origin: origin}
}

// SetImage swaps the backing image
func (s *ImageSurface) SetImage(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

func (s *ImageSurface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *ImageSurface) ScreenOrigin() image.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origin
}

func (s *ImageSurface) Draw(dst draw.Image, offset image.Point) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil
	}
	b := s.img.Bounds()
	r := image.Rectangle{Min: offset, Max: offset.Add(b.Size())}
	draw.Draw(dst, r, s.img, b.Min, draw.Src)
	return nil
}
