// Package logger wraps logrus with the component-scoped conventions used
// across the bridge.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls output level and format.
type Config struct {
	Level  string    `yaml:"level" toml:"level" env:"HOSTBRIDGE_LOG_LEVEL"`
	Format string    `yaml:"format" toml:"format" env:"HOSTBRIDGE_LOG_FORMAT"`
	Output io.Writer `yaml:"-" toml:"-"`
}

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// New builds a logger for component from cfg.
func New(component string, cfg Config) (*Logger, error) {
	base := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stderr)
	}

	return &Logger{Entry: base.WithField("component", component)}, nil
}

// NewDefault returns an info-level text logger for component.
func NewDefault(component string) *Logger {
	l, _ := New(component, Config{})
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Entry: base.WithField("component", "discard")}
}

// Named returns a child logger that shares output but reports a different component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}
