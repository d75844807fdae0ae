package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONWritesAttributes(t *testing.T) {
	var buf bytes.Buffer

	l := New(Options{Writer: &buf, Level: "info", Format: FormatJSON})
	l.With("source", "cases").Info("fetched", "records", 21)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}

	if entry["msg"] != "fetched" {
		t.Errorf("msg = %v, want fetched", entry["msg"])
	}

	if entry["source"] != "cases" {
		t.Errorf("source = %v, want cases", entry["source"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	l := New(Options{Writer: &buf, Level: "warn"})
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record leaked at warn level: %q", out)
	}

	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}

	l.SetLevel("debug")
	l.Debug("now visible")

	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("debug record missing after SetLevel")
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer

	New(Options{Writer: &buf, Format: FormatConsole}).Info("rendered", "layer", "vax")

	if !strings.Contains(buf.String(), "rendered") {
		t.Errorf("console output missing message: %q", buf.String())
	}
}
