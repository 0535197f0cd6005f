package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/service"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
	"github.com/godbus/dbus/v5"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsInterface = "org.freedesktop.Notifications"

	notificationAppName = "screenshotsender"
)

// notificationServer is the part of the freedesktop notification server we use
type notificationServer interface {
	Notify(replacesID uint32, summary, body string, actions []string) (uint32, error)
	CloseNotification(id uint32) error
}

// busServer talks to the notification daemon on the session bus
type busServer struct {
	obj dbus.BusObject
}

func (b busServer) Notify(replacesID uint32, summary, body string, actions []string) (uint32, error) {
	hints := map[string]dbus.Variant{
		"resident": dbus.MakeVariant(true),
		"urgency":  dbus.MakeVariant(byte(0)),
	}
	var id uint32
	err := b.obj.Call(notificationsInterface+".Notify", 0,
		notificationAppName, replacesID, "", summary, body, actions, hints, int32(0),
	).Store(&id)
	return id, err
}

func (b busServer) CloseNotification(id uint32) error {
	return b.obj.Call(notificationsInterface+".CloseNotification", 0, id).Err
}

// DesktopNotifications posts the persistent notification through the
// freedesktop notification daemon and runs its actions when invoked
type DesktopNotifications struct {
	server  notificationServer
	conn    *dbus.Conn
	signals chan *dbus.Signal
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu      sync.Mutex
	id      uint32
	current service.Notification
	actions map[string]func()
}

// NewDesktopNotifications connects to the session bus and starts listening for
// action invocations. Close releases the connection.
func NewDesktopNotifications() (*DesktopNotifications, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notificationsPath),
		dbus.WithMatchInterface(notificationsInterface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to match ActionInvoked: %w", err)
	}

	n := newDesktopNotifications(busServer{obj: conn.Object(notificationsService, notificationsPath)})
	n.conn = conn
	n.signals = make(chan *dbus.Signal, 10)
	conn.Signal(n.signals)

	n.wg.Add(1)
	go n.watchSignals()
	return n, nil
}

func newDesktopNotifications(server notificationServer) *DesktopNotifications {
	return &DesktopNotifications{
		server: server,
		stop:   make(chan struct{}),
	}
}

// actionKey is the identifier the daemon reports back for an action label
func actionKey(label string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", "-"))
}

// statusBody is the notification text for a status
func statusBody(text string, st status.Status) string {
	switch st.Kind {
	case status.InProgress:
		return "Uploading screenshot..."
	case status.Succeeded:
		return overlay.NoticeUploadSucceeded
	case status.Failed:
		return overlay.FailureNotice(st.Message, st.Code)
	default:
		return text
	}
}

func (n *DesktopNotifications) Show(note service.Notification) error {
	actions := make(map[string]func(), len(note.Actions))
	keys := make([]string, 0, 2*len(note.Actions))
	for _, a := range note.Actions {
		key := actionKey(a.Label)
		actions[key] = a.Run
		keys = append(keys, key, a.Label)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := n.server.Notify(n.id, note.Title, note.Text, keys)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	n.id = id
	n.current = note
	n.actions = actions
	logger.WithComponent("notification").Debug().Uint32("id", id).Msg("Notification posted")
	return nil
}

// Update replaces the notification body. Nothing happens before Show.
func (n *DesktopNotifications) Update(st status.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.id == 0 {
		return
	}

	keys := make([]string, 0, 2*len(n.current.Actions))
	for _, a := range n.current.Actions {
		keys = append(keys, actionKey(a.Label), a.Label)
	}
	id, err := n.server.Notify(n.id, n.current.Title, statusBody(n.current.Text, st), keys)
	if err != nil {
		logger.WithComponent("notification").Warn().Err(err).Msg("Failed to update notification")
		return
	}
	n.id = id
}

// Cancel closes the notification. A later Show posts a new one.
func (n *DesktopNotifications) Cancel() {
	n.mu.Lock()
	id := n.id
	n.id = 0
	n.actions = nil
	n.current = service.Notification{}
	n.mu.Unlock()

	if id == 0 {
		return
	}
	if err := n.server.CloseNotification(id); err != nil {
		logger.WithComponent("notification").Warn().Err(err).Msg("Failed to close notification")
	}
}

// Close stops listening for actions and releases the bus connection
func (n *DesktopNotifications) Close() error {
	var err error
	n.once.Do(func() {
		close(n.stop)
		n.wg.Wait()
		if n.conn != nil {
			n.conn.RemoveSignal(n.signals)
			err = n.conn.Close()
		}
	})
	return err
}

func (n *DesktopNotifications) watchSignals() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stop:
			return
		case sig, ok := <-n.signals:
			if !ok {
				return
			}
			n.handleSignal(sig)
		}
	}
}

// handleSignal runs the action named by an ActionInvoked signal for our
// notification
func (n *DesktopNotifications) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != notificationsInterface+".ActionInvoked" || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}
	key, ok := sig.Body[1].(string)
	if !ok {
		return
	}

	n.mu.Lock()
	run := n.actions[key]
	if id != n.id {
		run = nil
	}
	n.mu.Unlock()

	if run == nil {
		return
	}
	logger.WithComponent("notification").Info().Str("action", key).Msg("Notification action invoked")
	run()
}
