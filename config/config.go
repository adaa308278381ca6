// Package config loads settings from built-in defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigFile is tried in the working directory when no explicit
// config path is given
const DefaultConfigFile = "backup.yaml"

// EnvPrefix namespaces the recognized environment variables
const EnvPrefix = "BACKUP_"

// envKeys maps environment variables to config paths. An explicit table
// avoids guessing which underscores separate words and which nest keys.
var envKeys = map[string]string{
	"BACKUP_ROOT":           "root",
	"BACKUP_DIR":            "backup_dir",
	"BACKUP_WORKERS":        "workers",
	"BACKUP_CATALOG":        "catalog",
	"BACKUP_INCLUDE_DATA":   "include.data",
	"BACKUP_INCLUDE_LOGS":   "include.logs",
	"BACKUP_INCLUDE_CONFIG": "include.config",
	"BACKUP_LOG_LEVEL":      "logging.level",
	"BACKUP_LOG_FORMAT":     "logging.format",
}

// Config holds everything the CLI and engine need for one invocation
type Config struct {
	// Root is the project root that anchors all relative paths
	Root string `koanf:"root"`
	// BackupDir holds engine state; relative values resolve under Root
	BackupDir string `koanf:"backup_dir"`
	// Workers sizes the fingerprint pool, zero means one per CPU
	Workers int `koanf:"workers"`
	// Catalog is the run history database; relative values resolve under
	// BackupDir
	Catalog string  `koanf:"catalog"`
	Include Include `koanf:"include"`
	Logging Logging `koanf:"logging"`
}

// Include selects which optional trees join the candidate set
type Include struct {
	Data   bool `koanf:"data"`
	Logs   bool `koanf:"logs"`
	Config bool `koanf:"config"`
}

// Logging controls the process logger
type Logging struct {
	// Level is a zerolog level name, e.g. debug, info, warn
	Level string `koanf:"level"`
	// Format is console or json
	Format string `koanf:"format"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Root:      ".",
		BackupDir: "backup_core",
		Workers:   0,
		Catalog:   "catalog.db",
		Include:   Include{Data: true, Logs: true, Config: true},
		Logging:   Logging{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or backup.yaml in the working directory if present), then environment
// variables
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("Failed to load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("Failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("Failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("Failed to parse configuration: %w", err)
	}

	return cfg, nil
}

// envTransform maps a recognized variable to its config path; anything not
// in the table is dropped
func envTransform(key string) string {
	return envKeys[key]
}
