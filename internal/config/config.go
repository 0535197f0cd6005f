package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file
const (
	EnvBaseURL  = "SCREENSHOTSENDER_BASE_URL"
	EnvIdentity = "SCREENSHOTSENDER_IDENTITY"
	EnvLogLevel = "SCREENSHOTSENDER_LOG_LEVEL"
)

// Config represents the SDK configuration
type Config struct {
	Identity   string           `json:"identity" yaml:"identity"`
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Collector  CollectorConfig  `json:"collector" yaml:"collector"`
	Overlay    OverlayConfig    `json:"overlay" yaml:"overlay"`
	Capture    CaptureConfig    `json:"capture" yaml:"capture"`
	Upload     UploadConfig     `json:"upload" yaml:"upload"`
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`
	API        APIConfig        `json:"api" yaml:"api"`
}

// CollectorConfig describes the remote screenshot collector
type CollectorConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent string        `json:"user_agent" yaml:"user_agent"`
}

// OverlayConfig holds FAB geometry in density-independent pixels
type OverlayConfig struct {
	FabSizeDp       int     `json:"fab_size_dp" yaml:"fab_size_dp"`
	PaddingDp       int     `json:"padding_dp" yaml:"padding_dp"`
	MarginDp        int     `json:"margin_dp" yaml:"margin_dp"`
	DragThresholdPx int     `json:"drag_threshold_px" yaml:"drag_threshold_px"`
	Density         float64 `json:"density" yaml:"density"` // 0 means ask the platform
}

// CaptureConfig controls where artifacts go and which top strip is excluded
type CaptureConfig struct {
	CacheDir      string `json:"cache_dir" yaml:"cache_dir"`
	ReservedTopPx int    `json:"reserved_top_px" yaml:"reserved_top_px"`
}

// UploadConfig controls the upload cycle
type UploadConfig struct {
	RevertDelay time.Duration `json:"revert_delay" yaml:"revert_delay"`
}

// ResilienceConfig configures the collector circuit breaker
type ResilienceConfig struct {
	BreakerEnabled          bool          `json:"breaker_enabled" yaml:"breaker_enabled"`
	BreakerMinRequests      uint32        `json:"breaker_min_requests" yaml:"breaker_min_requests"`
	BreakerFailureRatio     float64       `json:"breaker_failure_ratio" yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout      time.Duration `json:"breaker_open_timeout" yaml:"breaker_open_timeout"`
	BreakerHalfOpenMaxCalls uint32        `json:"breaker_half_open_max_calls" yaml:"breaker_half_open_max_calls"`
}

// APIConfig configures the local control API
type APIConfig struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	Port             int     `json:"port" yaml:"port"`
	UploadRatePerSec float64 `json:"upload_rate_per_sec" yaml:"upload_rate_per_sec"`
	UploadBurst      int     `json:"upload_burst" yaml:"upload_burst"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		actualConfigPath = filepath.Join(homeDir, ".config", "screenshotsender", "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("base_url", m.config.Collector.BaseURL).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Collector: CollectorConfig{
			BaseURL:   "https://qa-stock.countrydelight.in/api/cd_training/",
			Timeout:   30 * time.Second,
			UserAgent: "ScreenShotSender/1.0",
		},
		Overlay: OverlayConfig{
			FabSizeDp:       56,
			PaddingDp:       2,
			MarginDp:        16,
			DragThresholdPx: 10,
		},
		Capture: CaptureConfig{
			CacheDir: filepath.Join(os.TempDir(), "screenshotsender"),
		},
		Upload: UploadConfig{
			RevertDelay: 3 * time.Second,
		},
		Resilience: ResilienceConfig{
			BreakerEnabled:          true,
			BreakerMinRequests:      5,
			BreakerFailureRatio:     0.6,
			BreakerOpenTimeout:      30 * time.Second,
			BreakerHalfOpenMaxCalls: 1,
		},
		API: APIConfig{
			Enabled:          true,
			Port:             8765,
			UploadRatePerSec: 1,
			UploadBurst:      2,
		},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Start from defaults so a partial file keeps sane values for missing keys
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return nil
}

func (c *Config) normalize() {
	def := Defaults()
	if c.Collector.Timeout <= 0 {
		c.Collector.Timeout = def.Collector.Timeout
	}
	if c.Overlay.FabSizeDp <= 0 {
		c.Overlay.FabSizeDp = def.Overlay.FabSizeDp
	}
	if c.Overlay.PaddingDp < 0 {
		c.Overlay.PaddingDp = def.Overlay.PaddingDp
	}
	if c.Overlay.MarginDp < 0 {
		c.Overlay.MarginDp = def.Overlay.MarginDp
	}
	if c.Overlay.DragThresholdPx <= 0 {
		c.Overlay.DragThresholdPx = def.Overlay.DragThresholdPx
	}
	if c.Capture.CacheDir == "" {
		c.Capture.CacheDir = def.Capture.CacheDir
	}
	if c.Capture.ReservedTopPx < 0 {
		c.Capture.ReservedTopPx = 0
	}
	if c.Upload.RevertDelay <= 0 {
		c.Upload.RevertDelay = def.Upload.RevertDelay
	}
	if c.API.UploadRatePerSec <= 0 {
		c.API.UploadRatePerSec = def.API.UploadRatePerSec
	}
	if c.API.UploadBurst <= 0 {
		c.API.UploadBurst = def.API.UploadBurst
	}
}

// ApplyEnv loads an optional .env file and applies environment overrides
func (m *Manager) ApplyEnv() {
	// A missing .env is the common case
	_ = godotenv.Load()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		m.config = Defaults()
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		m.config.Collector.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvIdentity)); v != "" {
		m.config.Identity = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		m.config.LogLevel = v
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update updates the entire configuration
func (m *Manager) Update(cfg *Config) error {
	cfg.normalize()
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetBaseURL sets the collector base URL
func (m *Manager) SetBaseURL(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Collector.BaseURL = baseURL
}

// SetIdentity sets the application identity used to resolve the upload flow
func (m *Manager) SetIdentity(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Identity = identity
}

// SetPort sets the control API port
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.API.Port = port
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// GetConfigPath returns the config file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Lookup resolves a dotted key such as "collector.base_url" against the YAML view
// of the current configuration.
func (m *Manager) Lookup(key string) (interface{}, bool) {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return nil, false
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, false
	}

	var current interface{} = tree
	for _, part := range strings.Split(key, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ParsePort validates a textual port number
func ParsePort(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %s", value)
	}
	return port, nil
}
