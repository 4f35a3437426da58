package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %s, want %s", cfg.Level, LevelInfo)
	}
	if cfg.Pretty {
		t.Error("Pretty should default to false")
	}
	if cfg.Service != "flight-search" {
		t.Errorf("Service = %q, want flight-search", cfg.Service)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: LevelWarn, Output: buf})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	for _, hidden := range []string{"debug message", "info message"} {
		if strings.Contains(output, hidden) {
			t.Errorf("%q should be filtered out at warn level", hidden)
		}
	}
	for _, shown := range []string{"warn message", "error message"} {
		if !strings.Contains(output, shown) {
			t.Errorf("%q should be included at warn level", shown)
		}
	}
}

func TestNew_DoesNotChangeGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Config{Level: LevelDebug, Output: buf})

	log.Info().Msg("global message")
	if buf.Len() != 0 {
		t.Errorf("New() must not replace the global logger, got %q", buf.String())
	}
}

func TestSetupAndNewLogger(t *testing.T) {
	before := log.Logger
	t.Cleanup(func() { log.Logger = before })

	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf, Service: "svc"})

	l := NewLogger("cache")
	l.Info().Msg("lookup")

	output := buf.String()
	for _, want := range []string{`"component":"cache"`, `"service":"svc"`, "lookup"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q should contain %q", output, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
