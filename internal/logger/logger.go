// Package logger builds the application's zap logger from the logging
// section of the configuration.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vvarelai/coinscan/internal/config"
)

// New builds a zap logger for the given logging config. Unknown levels fall
// back to info; "text" format maps to the console encoder.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()

	l, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(l)

	if cfg.Format != "json" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	return zc.Build()
}
