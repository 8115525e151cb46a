package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/vvarelai/coinscan/internal/config"
)

func TestNewWithValidLevel(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer log.Sync()

	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level should be enabled")
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: "loud", Format: "text"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer log.Sync()

	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled after fallback to info")
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info level should be enabled")
	}
}

func TestNewTextFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "warn", Format: "text"}); err != nil {
		t.Fatalf("New() with text format error: %v", err)
	}
}
