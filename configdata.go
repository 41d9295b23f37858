// Package richcord embeds config.default.toml, the annotated configuration
// written to the data directory on first run.
package richcord

import _ "embed"

// DefaultConfigTOML is config.default.toml, generated by cmd/genconfig.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
