package network

import (
	"sync"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
)

// Factory builds a fresh collector client
type Factory func() (*Client, error)

// Manager holds the process-wide collector client. The client is built on first
// use and dropped by Clear so the next session starts from a clean one.
type Manager struct {
	mu      sync.Mutex
	factory Factory
	client  *Client
}

// NewManager creates a manager that builds clients with factory
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// NewManagerWithOptions creates a manager that builds clients from opts
func NewManagerWithOptions(opts Options) *Manager {
	return NewManager(func() (*Client, error) {
		return NewClient(opts)
	})
}

// Get returns the current client, building it if needed
func (m *Manager) Get() (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}

	client, err := m.factory()
	if err != nil {
		return nil, err
	}
	logger.WithComponent("network").Debug().Msg("Collector client created")
	m.client = client
	return client, nil
}

// Clear drops the current client
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		m.client.CloseIdleConnections()
		m.client = nil
		logger.WithComponent("network").Debug().Msg("Collector client cleared")
	}
}
