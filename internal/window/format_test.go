package window

import (
	"image"
	"image/color"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFor(t *testing.T) {
	setup := &xproto.SetupInfo{PixmapFormats: []xproto.Format{
		{Depth: 1, BitsPerPixel: 1, ScanlinePad: 32},
		{Depth: 24, BitsPerPixel: 32, ScanlinePad: 32},
	}}

	f, err := formatFor(setup, 24)
	require.NoError(t, err)
	assert.Equal(t, pixelFormat{depth: 24, bytesPerPixel: 4, scanlinePad: 4}, f)

	_, err = formatFor(setup, 1)
	assert.Error(t, err)
	_, err = formatFor(setup, 16)
	assert.Error(t, err)
}

func TestStridePadsScanlines(t *testing.T) {
	bgr := pixelFormat{depth: 24, bytesPerPixel: 3, scanlinePad: 4}
	assert.Equal(t, 12, bgr.stride(3))
	assert.Equal(t, 12, bgr.stride(4))
	assert.Equal(t, 16, bgr.stride(5))

	bgrx := pixelFormat{depth: 24, bytesPerPixel: 4, scanlinePad: 4}
	assert.Equal(t, 20, bgrx.stride(5))
}

func TestEncodeDecodeSwapsChannels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff})
	img.SetRGBA(2, 1, color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff})

	for _, f := range []pixelFormat{
		{depth: 24, bytesPerPixel: 3, scanlinePad: 4},
		{depth: 24, bytesPerPixel: 4, scanlinePad: 4},
	} {
		data := f.encode(img)
		require.Len(t, data, f.stride(3)*2)
		assert.Equal(t, []byte{0x33, 0x22, 0x11}, data[:3], "server order is BGR")

		back, err := f.decode(data, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, img.RGBAAt(0, 0), back.RGBAAt(0, 0))
		assert.Equal(t, img.RGBAAt(2, 1), back.RGBAAt(2, 1))
		assert.Equal(t, uint8(0xff), back.RGBAAt(1, 0).A, "decoded pixels are opaque")
	}
}

func TestEncodeKeepsAlphaAtDepth32(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 0x80})

	assert.Equal(t, []byte{3, 2, 1, 0x80}, pixelFormat{depth: 32, bytesPerPixel: 4, scanlinePad: 4}.encode(img))
	assert.Equal(t, []byte{3, 2, 1, 0}, pixelFormat{depth: 24, bytesPerPixel: 4, scanlinePad: 4}.encode(img))
}

func TestEncodeSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 2, color.RGBA{R: 9, A: 0xff})
	sub := img.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	data := pixelFormat{depth: 24, bytesPerPixel: 4, scanlinePad: 4}.encode(sub)
	require.Len(t, data, 16)
	assert.Equal(t, byte(9), data[2])
}

func TestDecodeRejectsShortData(t *testing.T) {
	_, err := pixelFormat{depth: 24, bytesPerPixel: 4, scanlinePad: 4}.decode(make([]byte, 10), 2, 2)
	assert.Error(t, err)
}

func TestCircleSpans(t *testing.T) {
	spans := circleSpans(30, 30, 28, 60, 60)
	require.NotEmpty(t, spans)

	for _, s := range spans {
		assert.GreaterOrEqual(t, s.X, int16(0))
		assert.LessOrEqual(t, int(s.X)+int(s.Width), 60)
		assert.Equal(t, uint16(1), s.Height)
	}

	// The middle row spans the full diameter, the padding rows are empty
	assert.Equal(t, int16(2), spans[0].Y)
	var middle xproto.Rectangle
	for _, s := range spans {
		if s.Y == 30 {
			middle = s
		}
	}
	assert.Equal(t, int16(2), middle.X)
	assert.Equal(t, uint16(56), middle.Width)
}

func TestDensityFor(t *testing.T) {
	assert.Equal(t, 1.0, densityFor(1920, 0))
	assert.Equal(t, 1.0, densityFor(1920, 508), "96 dpi")
	assert.InDelta(t, 2.0, densityFor(3840, 508), 1e-9)
	assert.Equal(t, 1.0, densityFor(800, 1000), "low dpi never shrinks the control")
}
