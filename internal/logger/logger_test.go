package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		env, level string
		enabled    zap.AtomicLevel
	}{
		{"dev", "debug", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"prod", "warn", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"prod", "", zap.NewAtomicLevelAt(zap.InfoLevel)},
	}
	for _, tt := range tests {
		log, err := New(tt.env, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.env, tt.level, err)
		}
		if !log.Core().Enabled(tt.enabled.Level()) {
			t.Errorf("New(%q, %q) should enable %s", tt.env, tt.level, tt.enabled.Level())
		}
		if tt.enabled.Level() > zap.DebugLevel && log.Core().Enabled(zap.DebugLevel) {
			t.Errorf("New(%q, %q) should not enable debug", tt.env, tt.level)
		}
	}
}
