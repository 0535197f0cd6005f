package overlay

import (
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
)

// User-facing notices
const (
	NoticeUploadSucceeded = "Upload successful!"
	NoticeNoTarget        = "No view available for screenshot. Please ensure app is in foreground."
)

// Notifier shows short-lived messages to the user
type Notifier interface {
	Notice(message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string)

func (f NotifierFunc) Notice(message string) { f(message) }

// LogNotifier writes notices to the log. Used when the platform has no toast surface.
type LogNotifier struct{}

func (LogNotifier) Notice(message string) {
	logger.WithComponent("overlay").Info().Str("notice", message).Msg("Notice")
}
