package window

import (
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/service"
)

// Platform opens the X11 desktop platform for the overlay service
type Platform struct {
	// DisplayName selects the X display, empty for $DISPLAY
	DisplayName   string
	ToastDuration time.Duration
}

func (p Platform) Open(ui overlay.UI) (service.Host, error) {
	d, err := Open(p.DisplayName)
	if err != nil {
		return service.Host{}, err
	}

	host := NewOverlayHost(d, ui, nil)
	toaster := NewToaster(d, ui, p.ToastDuration)

	return service.Host{
		WindowManager: host,
		Notifier:      toaster,
		Enumerator:    d,
		Exclude:       d.Excluded,
		Bind: func(c *overlay.Controller) {
			host.SetEventHandler(c.Dispatch)
		},
		Close: func() error {
			toaster.Close()
			return d.Close()
		},
	}, nil
}
