package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	// Backend selects the store implementation: "sqlite" (default) or
	// "csv" for the flat-file snapshot store. Document attachments and
	// background extraction need sqlite.
	Backend string
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "fleetkeep-data"
		}
	}
	return filepath.Join(dir, "fleetkeep")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/fleetkeep/config.json, then applies FLEETKEEP_*
// environment overrides on top of the defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	switch cfg.Storage.Backend {
	case "sqlite", "csv":
	default:
		return Config{}, fmt.Errorf("invalid storage.backend %q (want sqlite or csv)", cfg.Storage.Backend)
	}
	return cfg, nil
}
