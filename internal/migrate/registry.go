package migrate

// Config is the registry for config.toml.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// Profiles is the registry for profiles.toml.
var Profiles = &Registry{Name: "profiles", CurrentVersion: 1}
