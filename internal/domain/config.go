// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Backend modes selectable via config.
const (
	ModeInternal = "internal"
	ModeExternal = "external"
)

// Config is the runtime configuration unmarshaled from config.toml plus
// environment overrides.
type Config struct {
	Version string

	// Mode selects the backend built at startup: "internal" scrapes the
	// origin site with the durable cache in front, "external" proxies every
	// call to an API-compatible service.
	Mode                  string `mapstructure:"mode"`
	BaseURL               string `mapstructure:"baseUrl"`
	ExternalAPIURL        string `mapstructure:"externalApiUrl"`
	TimeoutSeconds        int    `mapstructure:"timeoutSeconds"`
	PageSize              int    `mapstructure:"pageSize"`
	AllowExternalFallback bool   `mapstructure:"allowExternalFallback"`
	MinRequestIntervalMs  int    `mapstructure:"minRequestIntervalMs"`

	Internal InternalConfig `mapstructure:"internal"`

	DataDir       string `mapstructure:"dataDir"`
	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`
}

// InternalConfig tunes the internal (scraping) backend.
type InternalConfig struct {
	CacheTTLSeconds int `mapstructure:"cacheTtlSeconds"`
}
