package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}

	logger.Debug("webhook received", Method("POST"), Date("2024-03-05"), Index(3))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":     "webhook received",
		"level":   "debug",
		"service": "hookcatch",
		"method":  "POST",
		"date":    "2024-03-05",
		"index":   float64(3),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts")
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "WARN"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.Info("listening", Port(8080))
	if !strings.Contains(buf.String(), "listening") || strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console line, got %q", buf.String())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"level", Config{Level: "loud"}},
		{"format", Config{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWithWriter(tt.cfg, &bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HOOKCATCH_LOG_LEVEL", "debug")
	t.Setenv("HOOKCATCH_LOG_FORMAT", "console")

	cfg := FromEnv()
	if cfg.Level != "debug" || cfg.Format != "console" {
		t.Errorf("FromEnv = %+v", cfg)
	}
}
