package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		verbose, quiet bool
		want           zerolog.Level
	}{
		{false, false, zerolog.InfoLevel},
		{true, false, zerolog.DebugLevel},
		{false, true, zerolog.WarnLevel},
		{true, true, zerolog.WarnLevel},
	}

	for _, tt := range tests {
		Init(tt.verbose, tt.quiet)
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("Init(%v, %v): expected %s, got %s", tt.verbose, tt.quiet, tt.want, got)
		}
	}
}

func TestNewWritesPlainConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf).With().Str("component", "test").Logger()
	logger.Info().Int("clips", 3).Msg("rendered")

	out := buf.String()
	for _, want := range []string{"rendered", "clips=3", "component=test"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no color codes for a buffer, got %q", out)
	}
}
