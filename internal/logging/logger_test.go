package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Pretty: false, Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Info().Msg("hidden")
	Warn().Str("store_id", "42").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info event to be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, `"store_id":"42"`) {
		t.Errorf("Expected JSON field store_id, got %q", out)
	}
}

func TestInitInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "chatty", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Debug().Msg("debug line")
	Info().Msg("info line")

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Error("Expected debug to be suppressed with fallback info level")
	}
	if !strings.Contains(out, "info line") {
		t.Error("Expected info line to be logged")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	l := With("enrich")
	l.Info().Msg("stage")

	if !strings.Contains(buf.String(), `"component":"enrich"`) {
		t.Errorf("Expected component field, got %q", buf.String())
	}
}
