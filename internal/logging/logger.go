// Package logging builds the process logger and carries request IDs through
// contexts.
package logging

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pysugar/launcher-accounts/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger in development mode and a JSON logger otherwise.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return log, nil
}
