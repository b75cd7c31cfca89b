package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration.
type File struct {
	Server  Server             `yaml:"server"`
	Configs map[string]Options `yaml:"configs"`
}

// Server holds process-level settings for cmd/server.
type Server struct {
	Port        string `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	WatchConfig bool   `yaml:"watch_config"`
}

// Load reads the YAML file at path, applies defaults and SCRIPTBRIDGE_*
// environment overrides, then validates. An empty path yields defaults plus
// environment overrides only.
func Load(path string) (*File, error) {
	var f File
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&f)
	applyEnvOverrides(&f)

	if err := Validate(&f); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &f, nil
}

// ApplyDefaults fills unset server settings and guarantees a default config.
func ApplyDefaults(f *File) {
	if f.Server.Port == "" {
		f.Server.Port = "8080"
	}
	if f.Server.DBPath == "" {
		f.Server.DBPath = "./scriptbridge.db"
	}
	if f.Server.LogLevel == "" {
		f.Server.LogLevel = "info"
	}
	if f.Server.LogFormat == "" {
		f.Server.LogFormat = "text"
	}
	if f.Configs == nil {
		f.Configs = make(map[string]Options)
	}
	if _, ok := f.Configs[DefaultName]; !ok {
		f.Configs[DefaultName] = Options{}
	}
	for name, opts := range f.Configs {
		if opts == nil {
			f.Configs[name] = Options{}
		}
	}
}

func applyEnvOverrides(f *File) {
	if val := os.Getenv("PORT"); val != "" {
		f.Server.Port = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		f.Server.DBPath = val
	}
	if val := os.Getenv("SCRIPTBRIDGE_LOG_LEVEL"); val != "" {
		f.Server.LogLevel = val
	}
	if val := os.Getenv("SCRIPTBRIDGE_LOG_FORMAT"); val != "" {
		f.Server.LogFormat = val
	}
	if val := os.Getenv("SCRIPTBRIDGE_WATCH_CONFIG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			f.Server.WatchConfig = b
		}
	}
	if val := os.Getenv("SCRIPTBRIDGE_THRESHOLD_SIZE_BYTES"); val != "" {
		f.Configs[DefaultName][ThresholdSizeBytes] = val
	}
	if val := os.Getenv("SCRIPTBRIDGE_STRICT_JSON_BODY"); val != "" {
		f.Configs[DefaultName][StrictJSONBody] = val
	}
}

// Validate rejects settings the server cannot start with. Option values are
// not validated here: they normalize to defaults when read.
func Validate(f *File) error {
	if _, err := strconv.Atoi(f.Server.Port); err != nil {
		return fmt.Errorf("server.port %q is not a number", f.Server.Port)
	}
	if _, err := logrus.ParseLevel(f.Server.LogLevel); err != nil {
		return fmt.Errorf("server.log_level: %w", err)
	}
	switch f.Server.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("server.log_format must be text or json, got %q", f.Server.LogFormat)
	}
	return nil
}
