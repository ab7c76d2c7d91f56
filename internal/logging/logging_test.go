package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLevel, "")
	var console bytes.Buffer
	logger, closeFn, err := New(Options{Level: "info", Dir: dir, MaxSizeMB: 1, Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	logger.Infow("sampled", "room", "D1_1_1_101", "degree", 33.64)
	logger.Debugw("hidden")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(console.String(), "sampled") {
		t.Errorf("console output missing message: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug message logged at info level")
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("file has %d lines, want 1: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("file line is not JSON: %v", err)
	}
	if entry["msg"] != "sampled" || entry["room"] != "D1_1_1_101" {
		t.Errorf("entry = %v", entry)
	}
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	var console bytes.Buffer
	logger, closeFn, err := New(Options{Level: "error", Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("verbose")
	_ = closeFn()
	if !strings.Contains(console.String(), "verbose") {
		t.Error("EPU_LOG=debug should enable debug output")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" warn ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	t.Setenv(EnvLevel, "")
	if _, _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatal("expected error")
	}
}
