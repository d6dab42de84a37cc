package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_NopLogger(t *testing.T) {
	l := New()
	if l.Log == nil {
		t.Fatal("expected non-nil logger")
	}
	// must not panic
	l.Log.Info("discarded")
}

func TestInit(t *testing.T) {
	cases := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{"info", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			l := New()
			err := l.Init(tc.level)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Init(%q) expected error", tc.level)
				}
				return
			}
			if err != nil {
				t.Fatalf("Init(%q) error: %v", tc.level, err)
			}
			if !l.Log.Core().Enabled(tc.want) {
				t.Errorf("level %v not enabled after Init(%q)", tc.want, tc.level)
			}
			if tc.want > zapcore.DebugLevel && l.Log.Core().Enabled(tc.want-1) {
				t.Errorf("level %v unexpectedly enabled after Init(%q)", tc.want-1, tc.level)
			}
		})
	}
}
