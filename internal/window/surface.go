package window

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
)

// Surface is an X window that can be captured
type Surface struct {
	d   *Display
	win xproto.Window
}

// Surface wraps the window with the given id
func (d *Display) Surface(id uint32) *Surface {
	return &Surface{d: d, win: xproto.Window(id)}
}

// ID returns the X window id
func (s *Surface) ID() uint32 {
	return uint32(s.win)
}

// Size returns the window size, or zero when the window is gone
func (s *Surface) Size() (int, int) {
	geom, err := xproto.GetGeometry(s.d.conn, xproto.Drawable(s.win)).Reply()
	if err != nil {
		logger.WithComponent("x11").Debug().Err(err).Uint32("window_id", uint32(s.win)).Msg("Failed to get window geometry")
		return 0, 0
	}
	return int(geom.Width), int(geom.Height)
}

// ScreenOrigin translates the window origin to root coordinates
func (s *Surface) ScreenOrigin() image.Point {
	reply, err := xproto.TranslateCoordinates(s.d.conn, s.win, s.d.root, 0, 0).Reply()
	if err != nil {
		return image.Point{}
	}
	return image.Point{X: int(reply.DstX), Y: int(reply.DstY)}
}

// Draw copies the window contents into dst shifted by offset
func (s *Surface) Draw(dst draw.Image, offset image.Point) error {
	geom, err := xproto.GetGeometry(s.d.conn, xproto.Drawable(s.win)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get window geometry: %w", err)
	}

	attrs, err := xproto.GetWindowAttributes(s.d.conn, s.win).Reply()
	if err != nil {
		return fmt.Errorf("failed to get window attributes: %w", err)
	}
	if attrs.MapState != xproto.MapStateViewable {
		return fmt.Errorf("window %d is not viewable", s.win)
	}

	reply, err := xproto.GetImage(
		s.d.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.win),
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to get image: %w", err)
	}

	format := s.d.format
	if reply.Depth != format.depth {
		if format, err = formatFor(s.d.setup, reply.Depth); err != nil {
			return err
		}
	}
	src, err := format.decode(reply.Data, int(geom.Width), int(geom.Height))
	if err != nil {
		return err
	}

	r := image.Rectangle{Min: offset, Max: offset.Add(src.Bounds().Size())}
	draw.Draw(dst, r, src, image.Point{}, draw.Src)
	return nil
}
