package service

import (
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
)

// Persistent notification shown while the service runs
const (
	NotificationTitle = "Screenshot Sender"
	NotificationText  = "Tracking Screenshots..."
	ActionStop        = "Stop"
)

// Action is a button on the persistent notification
type Action struct {
	Label string
	Run   func()
}

// Notification is the persistent "service is running" notice
type Notification struct {
	Title   string
	Text    string
	Actions []Action
}

// Notifications renders the persistent notification. Update receives every
// status transition in order.
type Notifications interface {
	Show(n Notification) error
	Update(st status.Status)
	Cancel()
}

// LogNotifications writes the notification lifecycle to the log
type LogNotifications struct{}

func (LogNotifications) Show(n Notification) error {
	labels := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		labels = append(labels, a.Label)
	}
	logger.WithComponent("notification").Info().
		Str("title", n.Title).
		Str("text", n.Text).
		Strs("actions", labels).
		Msg("Notification posted")
	return nil
}

func (LogNotifications) Update(st status.Status) {
	logger.WithComponent("notification").Debug().
		Str("status", st.Kind.String()).
		Uint64("cycle", st.Cycle).
		Msg("Status changed")
}

func (LogNotifications) Cancel() {
	logger.WithComponent("notification").Info().Msg("Notification cancelled")
}
