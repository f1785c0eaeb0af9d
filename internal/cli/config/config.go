// Package config loads arena-cli settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds arena-cli configuration. Every field has a default, so the
// file itself is optional.
type Config struct {
	BaseURL     string        `yaml:"baseURL" validate:"required,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	SessionPath string        `yaml:"sessionPath" validate:"required"`
	HistoryFile string        `yaml:"historyFile"`
	PrettyJSON  *bool         `yaml:"prettyJSON"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	pretty := true
	return Config{
		BaseURL:     "http://127.0.0.1:8080",
		Timeout:     30 * time.Second,
		SessionPath: "configs/cli_session.json",
		HistoryFile: ".arena_history",
		PrettyJSON:  &pretty,
	}
}

// Load overlays the YAML file at path on Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if cfg.PrettyJSON == nil {
		cfg.PrettyJSON = Default().PrettyJSON
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid cli config: %w", err)
	}
	return nil
}
