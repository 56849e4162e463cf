package drivercore

import (
	"context"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"
)

// NopLogger returns a Logger that discards everything
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NewStdLogger returns a simple Logger backed by the standard library log package.
// Hosts should provide a structured logger in production.
func NewStdLogger() Logger {
	l := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)
	return &stdLogger{l: l}
}

type stdLogger struct {
	l  *log.Logger
	mu sync.Mutex
}

func (s *stdLogger) Debug(msg string, kv ...any) { s.printf("DEBUG", msg, kv...) }
func (s *stdLogger) Info(msg string, kv ...any)  { s.printf("INFO", msg, kv...) }
func (s *stdLogger) Warn(msg string, kv ...any)  { s.printf("WARN", msg, kv...) }
func (s *stdLogger) Error(msg string, kv ...any) { s.printf("ERROR", msg, kv...) }

func (s *stdLogger) printf(level, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(kv) == 0 {
		s.l.Printf("%s %s", level, msg)
		return
	}
	s.l.Printf("%s %s %v", level, msg, kv)
}

// NewSlogLogger adapts an slog.Logger. A nil logger uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, kv ...any) { s.l.Log(context.Background(), slog.LevelDebug, msg, kv...) }
func (s *slogLogger) Info(msg string, kv ...any)  { s.l.Log(context.Background(), slog.LevelInfo, msg, kv...) }
func (s *slogLogger) Warn(msg string, kv ...any)  { s.l.Log(context.Background(), slog.LevelWarn, msg, kv...) }
func (s *slogLogger) Error(msg string, kv ...any) { s.l.Log(context.Background(), slog.LevelError, msg, kv...) }

// NewSystemClock returns a Clock that uses time.Now().
func NewSystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
