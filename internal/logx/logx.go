// Package logx sets up the zap logger shared across a satellite process.
package logx

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger at the given level (case-insensitive: debug,
// info, warn, error, fatal), tagged with the satellite's name so multi-
// satellite deployments can be told apart in aggregated logs.
func New(name, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("satellite", name)), nil
}

// Named returns a child logger tagged with the given CSCP/CHIRP component
// name, mirroring the per-subsystem loggers (log_cscp, log_chirp, ...) the
// Python implementation attaches to each mixin.
func Named(base *zap.Logger, component string) *zap.Logger {
	return base.Named(component)
}
