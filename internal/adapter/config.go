package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/mmcdole/blobnav/internal/session"
)

// Backend identifies where blobs are stored
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Upload   UploadConfig   `mapstructure:"upload"`
	UI       UIConfig       `mapstructure:"ui"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the blob server location and credentials
type ServerConfig struct {
	URL      string `mapstructure:"url"`     // Server base URL
	UIRoot   string `mapstructure:"ui_root"` // Path prefix the browser is scoped to
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"` // Prompted for when empty
}

// StoreConfig selects the backend
type StoreConfig struct {
	Backend Backend `mapstructure:"backend"` // "local" or "remote"
	Path    string  `mapstructure:"path"`    // bbolt directory for the local backend
}

// SessionsConfig bounds the search session pool
type SessionsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// UploadConfig bounds batch concurrency
type UploadConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// UIConfig holds UI configuration
type UIConfig struct {
	Theme       string `mapstructure:"theme"`
	OpenCommand string `mapstructure:"open_command"` // Browser for "open in web UI", empty for system default
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:    "http://localhost:3179",
			UIRoot: "/ui/",
		},
		Store: StoreConfig{
			Backend: BackendLocal,
			Path:    defaultStorePath(),
		},
		Sessions: SessionsConfig{
			CacheSize: session.DefaultSize,
		},
		Upload: UploadConfig{
			Concurrency: 4,
		},
		UI: UIConfig{
			Theme: "default",
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "blobnav", "blobnav.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "blobnav", "blobnav.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "blobnav")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "blobnav")
	}
}

// defaultStorePath returns the default local store directory for the current OS
func defaultStorePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "blobnav", "store")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "blobnav", "store")
	}
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.url", cfg.Server.URL)
	v.SetDefault("server.ui_root", cfg.Server.UIRoot)
	v.SetDefault("server.username", cfg.Server.Username)
	v.SetDefault("server.password", cfg.Server.Password)
	v.SetDefault("store.backend", string(cfg.Store.Backend))
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("sessions.cache_size", cfg.Sessions.CacheSize)
	v.SetDefault("upload.concurrency", cfg.Upload.Concurrency)
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.open_command", cfg.UI.OpenCommand)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

func bindEnv(v *viper.Viper) {
	// Environment variable overrides, e.g. BLOBNAV_SERVER_URL
	v.SetEnvPrefix("BLOBNAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadConfig loads configuration from the default locations and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(viper.GetViper(), cfg)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")
	bindEnv(viper.GetViper())

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFrom loads configuration from an explicit file, which must exist
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)
	v.SetConfigFile(path)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the default config file
func SaveConfig(cfg *Config) error {
	return SaveConfigTo(cfg, filepath.Join(defaultConfigPath(), "config.yaml"))
}

// SaveConfigTo saves the configuration to path. The password is never written.
func SaveConfigTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("server.url", cfg.Server.URL)
	v.Set("server.ui_root", cfg.Server.UIRoot)
	v.Set("server.username", cfg.Server.Username)

	v.Set("store.backend", string(cfg.Store.Backend))
	v.Set("store.path", cfg.Store.Path)

	v.Set("sessions.cache_size", cfg.Sessions.CacheSize)
	v.Set("upload.concurrency", cfg.Upload.Concurrency)
	v.Set("ui.theme", cfg.UI.Theme)
	v.Set("ui.open_command", cfg.UI.OpenCommand)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the selected backend is usable
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendLocal:
		// An empty path gives a memory-only store.
	case BackendRemote:
		if c.Server.URL == "" {
			return fmt.Errorf("remote backend requires server.url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if !strings.HasPrefix(c.Server.UIRoot, "/") {
		return fmt.Errorf("server.ui_root must start with /: %q", c.Server.UIRoot)
	}
	if c.Sessions.CacheSize < session.MinSize {
		return fmt.Errorf("sessions.cache_size must be at least %d: %d", session.MinSize, c.Sessions.CacheSize)
	}
	return nil
}

// NeedsPassword reports whether the remote server has a user but no password
func (c *Config) NeedsPassword() bool {
	return c.Store.Backend == BackendRemote && c.Server.Username != "" && c.Server.Password == ""
}

// Location returns the browser location for a path below the UI root
func (c *Config) Location(rest string) string {
	return strings.TrimRight(c.Server.URL, "/") + c.Server.UIRoot + strings.TrimPrefix(rest, "/")
}
