package drivercore

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Standard filenames for a driver descriptor
const (
	CapabilitiesFileName     = "capabilities.json"
	CapabilitiesYAMLFileName = "capabilities.yaml"

	CapabilitiesSchemaVersion = 1
)

// Capabilities describes what a driver currently publishes.
//
// Intended for tooling and UIs; it is derived from the installed state and
// actions, so it changes when SetState or SetActions replaces them.
type Capabilities struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version"`

	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Dotted leaf paths of the state
	State []string `json:"state" yaml:"state"`
	// Bound action names
	Actions []string `json:"actions" yaml:"actions"`

	// Free-form extension point.
	Meta map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Describe returns the capabilities of the driver as currently installed
func (d *Driver) Describe() Capabilities {
	caps := Capabilities{
		SchemaVersion: CapabilitiesSchemaVersion,
		ID:            d.ID(),
		Name:          d.Name(),
		Type:          d.Type(),
		Version:       d.Version(),
		State:         []string{},
		Actions:       []string{},
	}
	if state := d.State(); state != nil {
		caps.State = state.Leaves()
	}
	if actions := d.Actions(); actions != nil {
		caps.Actions = actions.Names()
	}
	return caps
}

// WriteCapabilities encodes caps to w
func WriteCapabilities(w io.Writer, caps Capabilities, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(caps); err != nil {
			return fmt.Errorf("encode capabilities: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(caps); err != nil {
			return fmt.Errorf("encode capabilities: %w", err)
		}
		return nil
	}
}

// ReadCapabilities decodes a descriptor written by WriteCapabilities
func ReadCapabilities(r io.Reader, format Format) (Capabilities, error) {
	var caps Capabilities
	raw, err := io.ReadAll(r)
	if err != nil {
		return caps, err
	}
	cfg := Config{raw: raw, format: format}
	if err := cfg.Decode(&caps); err != nil {
		return caps, err
	}
	return caps, nil
}
