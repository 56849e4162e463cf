package drivercore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrEmptyConfig = errors.New("empty config")

// Format is the encoding of a configuration or descriptor file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Config is an opaque blob provided by the host for driver configuration.
// Behaviors should Decode() it into a strongly typed struct during Setup.
type Config struct {
	raw    []byte
	format Format
}

func NewJSONConfig(raw []byte) Config { return Config{raw: raw, format: FormatJSON} }

func NewYAMLConfig(raw []byte) Config { return Config{raw: raw, format: FormatYAML} }

// LoadConfigFile reads a config file; .yaml and .yml are YAML, anything else JSON
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Config{raw: raw, format: FormatFromPath(path)}, nil
}

// FormatFromPath picks a Format from a file extension
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func (c Config) Raw() []byte { return c.raw }

func (c Config) Format() Format { return c.format }

func (c Config) IsEmpty() bool { return len(strings.TrimSpace(string(c.raw))) == 0 }

func (c Config) Decode(v any) error {
	if c.IsEmpty() {
		return ErrEmptyConfig
	}
	switch c.format {
	case FormatYAML:
		if err := yaml.Unmarshal(c.raw, v); err != nil {
			return fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(c.raw, v); err != nil {
			return fmt.Errorf("decode json config: %w", err)
		}
	}
	return nil
}
