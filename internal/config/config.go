// Package config loads richcord's settings from config.toml in the data
// directory. Missing keys take their values from [DefaultConfig].
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/richcord/internal/atomicfile"
	"tools.zach/dev/richcord/internal/migrate"
	"tools.zach/dev/richcord/internal/paths"
)

// snowflakeRe matches Discord application IDs.
var snowflakeRe = regexp.MustCompile(`^[0-9]{17,20}$`)

// ValidClientID reports whether id looks like a Discord application ID.
func ValidClientID(id string) bool {
	return snowflakeRe.MatchString(id)
}

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config is the top-level configuration.
type Config struct {
	Version    int              `toml:"version"`
	Discord    DiscordConfig    `toml:"discord"`
	Connection ConnectionConfig `toml:"connection"`
	Presence   PresenceConfig   `toml:"presence"`
	Images     ImagesConfig     `toml:"images"`
	Apps       AppsConfig       `toml:"apps"`
	Control    ControlConfig    `toml:"control"`
	Log        LogConfig        `toml:"log"`
}

// DiscordConfig selects the Discord application.
type DiscordConfig struct {
	// ClientID is the Discord application ID. Empty means none configured.
	ClientID string `toml:"client_id"`
	// AutoConnect makes the daemon connect at startup.
	AutoConnect bool `toml:"auto_connect"`
}

// ConnectionConfig tunes login retries and reconnects.
type ConnectionConfig struct {
	MaxAttempts           int `toml:"max_attempts"`
	RetryDelaySeconds     int `toml:"retry_delay_seconds"`
	RetryMaxDelaySeconds  int `toml:"retry_max_delay_seconds"`
	ReconnectDelaySeconds int `toml:"reconnect_delay_seconds"`
	// CommandTimeoutSeconds bounds each Discord command; 0 disables it.
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`
}

// PresenceConfig holds the placeholder text and the update rate limit.
type PresenceConfig struct {
	DefaultDetails      string `toml:"default_details"`
	DefaultState        string `toml:"default_state"`
	UpdatesPerWindow    int    `toml:"updates_per_window"`
	UpdateWindowSeconds int    `toml:"update_window_seconds"`
}

// ImagesConfig controls uploading local images.
type ImagesConfig struct {
	Upload        bool   `toml:"upload"`
	ImgurClientID string `toml:"imgur_client_id"`
}

// AppsConfig controls the running-app list.
type AppsConfig struct {
	// Ignore holds doublestar patterns matched case-insensitively against
	// app names.
	Ignore       []string `toml:"ignore"`
	CacheSeconds int      `toml:"cache_seconds"`
}

// ControlConfig locates the daemon's control endpoint.
type ControlConfig struct {
	// Socket overrides the control socket path (or pipe name on Windows).
	Socket string `toml:"socket"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `toml:"level"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			AutoConnect: true,
		},
		Connection: ConnectionConfig{
			MaxAttempts:           3,
			RetryDelaySeconds:     5,
			RetryMaxDelaySeconds:  5,
			ReconnectDelaySeconds: 10,
			CommandTimeoutSeconds: 10,
		},
		Presence: PresenceConfig{
			DefaultDetails:      "Online",
			DefaultState:        "Active",
			UpdatesPerWindow:    5,
			UpdateWindowSeconds: 20,
		},
		Images: ImagesConfig{
			Upload: true,
		},
		Apps: AppsConfig{
			Ignore: []string{
				"ApplicationFrameHost",
				"SystemSettings",
				"TextInputHost",
				"explorer",
				"gnome-shell",
				"plasmashell",
			},
			CacheSeconds: 10,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// PlaceholderClientID stands in for the application ID in the seeded
// config file until the user replaces it.
const PlaceholderClientID = "000000000000000000"

// ExampleConfig is the config written to config.default.toml.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Discord.ClientID = PlaceholderClientID
	return cfg
}

// HasClientID reports whether a real application ID is configured.
func (d DiscordConfig) HasClientID() bool {
	return d.ClientID != "" && d.ClientID != PlaceholderClientID
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

func (c ConnectionConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c ConnectionConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds) * time.Second
}

func (c ConnectionConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// CommandTimeout returns a negative duration when timeouts are disabled.
func (c ConnectionConfig) CommandTimeout() time.Duration {
	if c.CommandTimeoutSeconds == 0 {
		return -1
	}
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// UpdateInterval is the spacing between presence updates that keeps within
// the configured window.
func (p PresenceConfig) UpdateInterval() time.Duration {
	return time.Duration(p.UpdateWindowSeconds) * time.Second / time.Duration(p.UpdatesPerWindow)
}

func (a AppsConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheSeconds) * time.Second
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// PeekVersion reads only the version key. A missing or unreadable version
// counts as 1.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if _, err := toml.Decode(string(data), &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// Load reads dataDir/config.toml. A missing file yields DefaultConfig. An
// outdated file is backed up, migrated, and saved back.
func Load(dataDir string) (*Config, error) {
	return LoadFile(paths.DataDir{Root: dataDir}.Config())
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	data, migrated, err := migrate.Config.Apply(data, PeekVersion(data), path+".bak")
	if err != nil {
		return nil, fmt.Errorf("migrate config: %w", err)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Save writes the config atomically.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks every value is usable.
func (c *Config) Validate() error {
	if c.Discord.ClientID != "" && !ValidClientID(c.Discord.ClientID) {
		return fmt.Errorf("invalid discord.client_id %q: must be a 17-20 digit application ID", c.Discord.ClientID)
	}

	conn := c.Connection
	if conn.MaxAttempts < 1 {
		return fmt.Errorf("connection.max_attempts must be >= 1, got %d", conn.MaxAttempts)
	}
	if conn.RetryDelaySeconds <= 0 {
		return fmt.Errorf("connection.retry_delay_seconds must be > 0, got %d", conn.RetryDelaySeconds)
	}
	if conn.RetryMaxDelaySeconds < conn.RetryDelaySeconds {
		return fmt.Errorf("connection.retry_max_delay_seconds (%d) must be >= retry_delay_seconds (%d)",
			conn.RetryMaxDelaySeconds, conn.RetryDelaySeconds)
	}
	if conn.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("connection.reconnect_delay_seconds must be > 0, got %d", conn.ReconnectDelaySeconds)
	}
	if conn.CommandTimeoutSeconds < 0 {
		return fmt.Errorf("connection.command_timeout_seconds must be >= 0, got %d", conn.CommandTimeoutSeconds)
	}

	if c.Presence.UpdatesPerWindow < 1 {
		return fmt.Errorf("presence.updates_per_window must be >= 1, got %d", c.Presence.UpdatesPerWindow)
	}
	if c.Presence.UpdateWindowSeconds <= 0 {
		return fmt.Errorf("presence.update_window_seconds must be > 0, got %d", c.Presence.UpdateWindowSeconds)
	}

	for _, pattern := range c.Apps.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid apps.ignore pattern %q", pattern)
		}
	}
	if c.Apps.CacheSeconds < 0 {
		return fmt.Errorf("apps.cache_seconds must be >= 0, got %d", c.Apps.CacheSeconds)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}
