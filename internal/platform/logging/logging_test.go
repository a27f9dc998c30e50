package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/flozac77/StreamZilla/internal/config"
)

func TestNew_Format(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "msg=hello") {
					t.Errorf("text output = %q", out)
				}
			},
		},
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out string) {
				var entry map[string]any
				if err := json.Unmarshal([]byte(out), &entry); err != nil {
					t.Fatalf("output is not JSON: %q", out)
				}
				if entry["msg"] != "hello" || entry["level"] != "INFO" {
					t.Errorf("json entry = %v", entry)
				}
			},
		},
		{
			name:   "unknown falls back to json",
			format: "logfmt",
			check: func(t *testing.T, out string) {
				if !json.Valid([]byte(out)) {
					t.Errorf("output is not JSON: %q", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(config.LogConfig{Level: "info", Format: tt.format}, &buf).Info("hello")
			tt.check(t, buf.String())
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record missing: %q", out)
	}
}
