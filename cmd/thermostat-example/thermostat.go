package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	drivercore "github.com/NotrixInc/nx-driver-core"
)

// thermostatConfig is decoded from the driver configuration in Setup
type thermostatConfig struct {
	Setpoint     float64 `json:"setpoint" yaml:"setpoint"`
	MinSetpoint  float64 `json:"min_setpoint" yaml:"min_setpoint"`
	MaxSetpoint  float64 `json:"max_setpoint" yaml:"max_setpoint"`
	PollInterval string  `json:"poll_interval" yaml:"poll_interval"`
}

func defaultThermostatConfig() thermostatConfig {
	return thermostatConfig{
		Setpoint:     21,
		MinSetpoint:  5,
		MaxSetpoint:  30,
		PollInterval: "2s",
	}
}

var errSetpointRange = errors.New("setpoint out of range")

// thermostat is a simulated heating thermostat. The sensor drifts toward the
// setpoint while heating is on.
type thermostat struct {
	cfg    thermostatConfig
	logger drivercore.Logger

	mu      sync.Mutex
	reading float64
	driver  *drivercore.Driver
}

func newThermostat() *thermostat {
	return &thermostat{cfg: defaultThermostatConfig(), logger: drivercore.NopLogger(), reading: 18}
}

func (t *thermostat) Setup(ctx context.Context, d *drivercore.Driver) error {
	t.mu.Lock()
	t.driver = d
	t.logger = d.Logger()
	t.mu.Unlock()

	if cfg := d.Config(); !cfg.IsEmpty() {
		if err := cfg.Decode(&t.cfg); err != nil {
			return err
		}
	}

	if _, err := d.SetState(map[string]any{
		"temperature": map[string]any{
			"current":  t.reading,
			"setpoint": t.cfg.Setpoint,
		},
		"heating": false,
		"online":  true,
	}); err != nil {
		return err
	}

	_, err := d.SetActions(map[string]any{
		"ping":         func() any { return "pong" },
		"set_setpoint": t.setSetpoint,
		"refresh":      func(ctx context.Context, _ ...any) (any, error) { return nil, t.poll(ctx) },
		"model":        "nx-thermo-1",
	})
	return err
}

func (t *thermostat) OnChange(c drivercore.Change) error {
	t.logger.Debug("state changed", "path", c.Path, "old", c.OldValue, "new", c.NewValue)
	return nil
}

func (t *thermostat) OnCall(inv drivercore.Invocation) error {
	t.logger.Info("action called", "action", inv.Name, "id", inv.ID, "params", inv.Params)
	return nil
}

func (t *thermostat) pollInterval() time.Duration {
	d, err := time.ParseDuration(t.cfg.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

func (t *thermostat) setSetpoint(_ context.Context, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("set_setpoint: want 1 argument, got %d", len(args))
	}
	v, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("set_setpoint: want a number, got %T", args[0])
	}
	if v < t.cfg.MinSetpoint || v > t.cfg.MaxSetpoint {
		return nil, fmt.Errorf("%w: %.1f not in [%.1f, %.1f]", errSetpointRange, v, t.cfg.MinSetpoint, t.cfg.MaxSetpoint)
	}
	if err := t.driver.State().SetPath("temperature.setpoint", v); err != nil {
		return nil, err
	}
	return v, nil
}

// poll reads the simulated sensor and publishes it
func (t *thermostat) poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := t.driver.State()
	setpoint, ok := state.GetFloat("temperature.setpoint")
	if !ok {
		return fmt.Errorf("poll: %w", drivercore.ErrPathNotFound)
	}

	t.mu.Lock()
	heating := t.reading < setpoint-0.2
	if heating {
		t.reading += 0.5
	} else {
		t.reading -= 0.1
	}
	reading := math.Round(t.reading*10) / 10
	t.mu.Unlock()

	if err := state.SetPath("temperature.current", reading); err != nil {
		return err
	}
	if current, _ := state.GetBool("heating"); current != heating {
		return state.Set("heating", heating)
	}
	return nil
}
