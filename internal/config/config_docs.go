package config

// FieldDoc documents one config key for the generated config.default.toml.
type FieldDoc struct {
	// Comment is written above the key.
	Comment string
	// Alternatives are written below the key as commented-out lines.
	Alternatives []string
}

// ConfigDocs maps dotted TOML key paths to their documentation. Every key
// of [Config] has an entry.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Discord
	"discord.client_id": {
		Comment: "Application ID from the Discord developer portal (General Information > Application ID).\nImage keys in presences refer to the assets uploaded to this application.",
	},
	"discord.auto_connect": {
		Comment: "Connect as client_id when the daemon starts.",
	},

	// Connection
	"connection.max_attempts": {
		Comment: "Login attempts before giving up on a connect.",
	},
	"connection.retry_delay_seconds": {
		Comment: "Delay after the first failed login. Each further failure adds this much again,\nup to retry_max_delay_seconds.",
	},
	"connection.retry_max_delay_seconds": {},
	"connection.reconnect_delay_seconds": {
		Comment: "Wait after losing the connection before reconnecting.",
	},
	"connection.command_timeout_seconds": {
		Comment: "Time limit for each Discord command. 0 disables it.",
	},

	// Presence
	"presence.default_details": {
		Comment: "Text shown when a presence leaves details or state empty.",
	},
	"presence.default_state": {},
	"presence.updates_per_window": {
		Comment: "Discord accepts about 5 activity updates every 20 seconds.\nFaster updates are delayed, not dropped.",
	},
	"presence.update_window_seconds": {},

	// Images
	"images.upload": {
		Comment: "Upload local image files so Discord can display them.\nWithout an Imgur client ID images are embedded as data URIs instead.",
	},
	"images.imgur_client_id": {
		Alternatives: []string{
			`imgur_client_id = "0123456789abcde"`,
		},
	},

	// Apps
	"apps.ignore": {
		Comment: "Apps hidden from `richcord apps`. Glob patterns, case-insensitive.",
		Alternatives: []string{
			`ignore = ["steam*", "*helper*"]`,
		},
	},
	"apps.cache_seconds": {
		Comment: "How long the running-app list is reused before it is read again.",
	},

	// Control
	"control.socket": {
		Comment: "Control socket path. Empty uses richcord.sock in the data directory\n(\\\\.\\pipe\\richcord-<user> on Windows).",
	},

	// Log
	"log.level": {
		Comment: "Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Daemon log size before it is rotated.",
	},
}
