package window

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
)

// Candidates lists top-level windows using EWMH _NET_CLIENT_LIST, falling back
// to the children of the root window
func (d *Display) Candidates() ([]overlay.Candidate, error) {
	log := logger.WithComponent("x11")

	ids, err := d.clientList()
	if err != nil || len(ids) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("EWMH client list unavailable, falling back to QueryTree")
		}
		tree, err := xproto.QueryTree(d.conn, d.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", err)
		}
		ids = tree.Children
	}

	candidates := make([]overlay.Candidate, 0, len(ids))
	skipped := 0
	for _, win := range ids {
		c, ok := d.candidate(win)
		if !ok {
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}

	log.Debug().
		Int("found", len(candidates)).
		Int("skipped", skipped).
		Msg("Enumerated windows")
	return candidates, nil
}

func (d *Display) clientList() ([]xproto.Window, error) {
	value, err := d.property(d.root, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}

	ids := make([]xproto.Window, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		ids = append(ids, xproto.Window(uint32(value[i])|
			uint32(value[i+1])<<8|
			uint32(value[i+2])<<16|
			uint32(value[i+3])<<24))
	}
	return ids, nil
}

// candidate describes win. Windows with neither title nor class are not user windows.
func (d *Display) candidate(win xproto.Window) (overlay.Candidate, bool) {
	geom, err := xproto.GetGeometry(d.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return overlay.Candidate{}, false
	}
	attrs, err := xproto.GetWindowAttributes(d.conn, win).Reply()
	if err != nil {
		return overlay.Candidate{}, false
	}

	c := overlay.Candidate{
		ID:      uint32(win),
		Owner:   d.windowClass(win),
		Title:   d.windowTitle(win),
		Width:   int(geom.Width),
		Height:  int(geom.Height),
		Visible: attrs.MapState == xproto.MapStateViewable && attrs.Class == xproto.WindowClassInputOutput,
	}
	if c.Owner == "" && c.Title == "" {
		return overlay.Candidate{}, false
	}
	c.Surface = d.Surface(c.ID)
	return c, true
}

// Excluded reports whether a candidate belongs to this process and must not be captured
func (d *Display) Excluded(c overlay.Candidate) bool {
	return d.Owns(c.ID)
}
