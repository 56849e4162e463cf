package drivercore

import (
	"time"
)

type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type Clock interface {
	Now() time.Time
}

// Option configures a Driver
type Option func(*options)

type options struct {
	logger Logger
	clock  Clock
	config Config
}

func defaultOptions() options {
	return options{
		logger: NopLogger(),
		clock:  NewSystemClock(),
	}
}

// WithLogger sets the driver logger (default: discard)
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock used for timestamps
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithConfig hands a driver configuration blob to the behavior
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}
