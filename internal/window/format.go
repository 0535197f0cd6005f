package window

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
)

// pixelFormat is the server's ZPixmap layout for one depth
type pixelFormat struct {
	depth         byte
	bytesPerPixel int
	scanlinePad   int // in bytes
}

func formatFor(setup *xproto.SetupInfo, depth byte) (pixelFormat, error) {
	for _, f := range setup.PixmapFormats {
		if f.Depth == depth {
			pf := pixelFormat{
				depth:         depth,
				bytesPerPixel: int(f.BitsPerPixel) / 8,
				scanlinePad:   int(f.ScanlinePad) / 8,
			}
			if pf.bytesPerPixel != 3 && pf.bytesPerPixel != 4 {
				return pixelFormat{}, fmt.Errorf("unsupported bits per pixel %d for depth %d", f.BitsPerPixel, depth)
			}
			if pf.scanlinePad == 0 {
				pf.scanlinePad = 1
			}
			return pf, nil
		}
	}
	return pixelFormat{}, fmt.Errorf("no format found for depth %d", depth)
}

// stride is the padded length of one scanline
func (f pixelFormat) stride(width int) int {
	unpadded := width * f.bytesPerPixel
	return ((unpadded + f.scanlinePad - 1) / f.scanlinePad) * f.scanlinePad
}

// decode converts BGR(x) server data to an opaque RGBA image
func (f pixelFormat) decode(data []byte, width, height int) (*image.RGBA, error) {
	stride := f.stride(width)
	if len(data) < stride*height {
		return nil, fmt.Errorf("short image data: got %d bytes, want %d", len(data), stride*height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			s := x * f.bytesPerPixel
			d := x * 4
			dst[d] = src[s+2]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s]
			dst[d+3] = 0xff
		}
	}
	return img, nil
}

// encode converts an RGBA image to the server layout. Alpha is kept only at depth 32.
func (f pixelFormat) encode(img *image.RGBA) []byte {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	stride := f.stride(width)
	data := make([]byte, stride*height)

	for y := 0; y < height; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := data[y*stride:]
		for x := 0; x < width; x++ {
			s := x * 4
			d := x * f.bytesPerPixel
			dst[d] = src[s+2]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s]
			if f.bytesPerPixel == 4 && f.depth == 32 {
				dst[d+3] = src[s+3]
			}
		}
	}
	return data
}
