package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/CTAG07/Liquidize/pkg/preview"
	"github.com/CTAG07/Liquidize/pkg/templating"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP server and storage.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
	ImportDir    string `json:"import_dir"`
	ExportDir    string `json:"export_dir"`
}

// PreviewConfig holds settings for live preview sessions.
type PreviewConfig struct {
	RootClass        string `json:"root_class"`
	SessionTTLSec    int    `json:"session_ttl_sec"`
	MaxSessions      int    `json:"max_sessions"`
	PruneIntervalSec int    `json:"prune_interval_sec"`
}

// StatsConfig holds settings for render statistics.
type StatsConfig struct {
	Enabled  bool `json:"enabled"`
	TopLimit int  `json:"top_limit"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
	Preview   *PreviewConfig             `json:"preview_config"`
	Stats     *StatsConfig               `json:"stats_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:      ":7280",
		LogLevel:     "info",
		LogFormat:    "auto",
		DataDir:      "./data",
		DatabasePath: "./data/liquidize.db",
		ImportDir:    "./data/import",
		ExportDir:    "./data/export",
	}
}

// DefaultPreviewConfig creates a preview configuration with default values.
func DefaultPreviewConfig() *PreviewConfig {
	def := preview.DefaultConfig()
	return &PreviewConfig{
		RootClass:        def.RootClass,
		SessionTTLSec:    int(def.SessionTTL / time.Second),
		MaxSessions:      def.MaxSessions,
		PruneIntervalSec: 60,
	}
}

// DefaultStatsConfig creates a stats configuration with default values.
func DefaultStatsConfig() *StatsConfig {
	return &StatsConfig{
		Enabled:  true,
		TopLimit: 100,
	}
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
		Preview:   DefaultPreviewConfig(),
		Stats:     DefaultStatsConfig(),
	}
}

// previewConfig converts the JSON preview section to the preview package's form.
func (pc *PreviewConfig) previewConfig() preview.Config {
	return preview.Config{
		RootClass:   pc.RootClass,
		SessionTTL:  time.Duration(pc.SessionTTLSec) * time.Second,
		MaxSessions: pc.MaxSessions,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.fillDefaults()
	return config, nil
}

// fillDefaults restores sections a config file left out or set to null.
func (c *Config) fillDefaults() {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	if c.Templates == nil {
		c.Templates = templating.DefaultConfig()
	}
	if c.Preview == nil {
		c.Preview = DefaultPreviewConfig()
	}
	if c.Stats == nil {
		c.Stats = DefaultStatsConfig()
	}
}

// ConfigManager handles thread-safe access to configuration and pushes
// changes to the components that depend on it.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	tm         *templating.TemplateManager
	pm         *preview.Manager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

// SetPreviewManager registers the preview manager to receive config updates.
func (cm *ConfigManager) SetPreviewManager(pm *preview.Manager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.pm = pm
	if pm != nil {
		pm.SetConfig(cm.config.Preview.previewConfig())
	}
}

// SetLogger sets the logger used for config changes.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a thread-safe copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates and applies the new configuration, then saves it to disk.
// A template configuration the template manager rejects leaves everything
// unchanged.
func (cm *ConfigManager) Update(newConfig Config) error {
	newConfig.fillDefaults()

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates

		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}
	if cm.pm != nil {
		cm.pm.SetConfig(newConfig.Preview.previewConfig())
	}

	*cm.config = newConfig

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}
