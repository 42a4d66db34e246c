package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds blobsh defaults loaded from a config file.
//
// TrimLimit is a pointer because zero is a meaningful value the cache
// accepts; nil means "not set here".
type Config struct {
	DataLimit    int  `json:"data_limit,omitempty"`
	AllocQuantum int  `json:"alloc_quantum,omitempty"`
	ReadQuantum  int  `json:"read_quantum,omitempty"`
	TrimLimit    *int `json:"trim_limit,omitempty"`
}

// ConfigFileName is the project config file name, searched in the
// working directory. The user config file is config.json under
// ~/.config/blobsh instead.
const ConfigFileName = ".blobsh.json"

// DefaultConfig returns the default cache sizing.
func DefaultConfig() Config {
	trim := 1

	return Config{
		DataLimit:    1 << 20,
		AllocQuantum: 16384,
		ReadQuantum:  16384,
		TrimLimit:    &trim,
	}
}

// LoadConfig loads configuration with the following precedence
// (highest wins): defaults, user config (~/.config/blobsh/config.json),
// project config (.blobsh.json), explicit path.
func LoadConfig(explicit string) (Config, error) {
	cfg := DefaultConfig()

	paths := []string{}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "blobsh", "config.json"))
	}

	paths = append(paths, ConfigFileName)

	if explicit != "" {
		paths = append(paths, explicit)
	}

	for _, path := range paths {
		loaded, err := loadConfigFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path != explicit {
				continue
			}

			return Config{}, err
		}

		cfg = mergeConfig(cfg, loaded)
	}

	return cfg, nil
}

// loadConfigFile reads one config file. The format is JWCC (JSON with
// comments and trailing commas).
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// mergeConfig overlays the set fields of over onto base. The sizing
// fields must be positive, so zero doubles as "not set"; TrimLimit
// signals presence through its pointer instead, since zero is a valid
// trim limit.
func mergeConfig(base, over Config) Config {
	if over.DataLimit > 0 {
		base.DataLimit = over.DataLimit
	}

	if over.AllocQuantum > 0 {
		base.AllocQuantum = over.AllocQuantum
	}

	if over.ReadQuantum > 0 {
		base.ReadQuantum = over.ReadQuantum
	}

	if over.TrimLimit != nil {
		base.TrimLimit = over.TrimLimit
	}

	return base
}
