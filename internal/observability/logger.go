// Package observability builds the process-wide zap logger.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	mu sync.RWMutex

	// global is the process-wide logger returned by L. It is a no-op logger
	// until Init or Replace installs one.
	global = zap.NewNop()
)

// Options selects the logger's level and encoding.
type Options struct {
	Level  string
	Format string

	// Output defaults to stderr so stdout stays free for JSONL records.
	Output io.Writer
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") onto a
// zap level. An empty name means info.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	if name == "warning" {
		name = "warn"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return lvl, nil
}

// NewLogger builds a logger from opts.
func NewLogger(opts Options) (*zap.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q (want %q or %q)", opts.Format, FormatConsole, FormatJSON)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller()).Named("goextract"), nil
}

// Init builds a logger from opts and installs it as the process logger.
func Init(opts Options) (*zap.Logger, error) {
	logger, err := NewLogger(opts)
	if err != nil {
		return nil, err
	}
	Replace(logger)
	return logger, nil
}

// Replace installs logger as the process logger and returns a function that
// restores the previous one. A nil logger installs a no-op logger.
func Replace(logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	mu.Lock()
	prev := global
	global = logger
	mu.Unlock()
	return func() { Replace(prev) }
}

// L returns the installed logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}
