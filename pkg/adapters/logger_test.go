// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package adapters

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
	}
	for input, want := range tests {
		got, err := ParseLogLevel(input)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("ParseLogLevel(verbose) expected error")
	}
}

func TestDefaultLogger_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", DebugLevel)
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message", Field{Key: "sequence", Value: 7})
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message", ErrorField(errors.New("boom")))

	output := buf.String()
	for _, want := range []string{
		"level=DEBUG", "debug message",
		"level=INFO", "info message", "sequence=7",
		"level=WARN", "warn message",
		"level=ERROR", "error message", "error=boom",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q, got: %s", want, output)
		}
	}
}

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", WarnLevel)
	ctx := context.Background()

	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn level, got: %s", buf.String())
	}

	logger.Warn(ctx, "visible warn")
	if !strings.Contains(buf.String(), `"msg":"visible warn"`) {
		t.Errorf("expected JSON warn entry, got: %s", buf.String())
	}

	logger.SetLevel(DebugLevel)
	if logger.GetLevel() != DebugLevel {
		t.Errorf("GetLevel() = %v, want DEBUG", logger.GetLevel())
	}
}

func TestDefaultLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "text", InfoLevel)
	child := base.WithFields(Field{Key: "container", Value: "partition-a"})

	child.Info(context.Background(), "child entry", Field{Key: "kind", Value: "full"})
	base.Info(context.Background(), "base entry")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "container=partition-a") || !strings.Contains(lines[0], "kind=full") {
		t.Errorf("child entry missing fields: %s", lines[0])
	}
	if strings.Contains(lines[1], "container=") {
		t.Errorf("base logger must not inherit child fields: %s", lines[1])
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	ctx := context.Background()

	logger.Debug(ctx, "ignored")
	logger.Info(ctx, "ignored")
	logger.Warn(ctx, "ignored")
	logger.Error(ctx, "ignored")

	if logger.WithFields(Field{Key: "k", Value: "v"}) != logger {
		t.Error("WithFields should return the same no-op logger")
	}
	logger.SetLevel(DebugLevel)
	if logger.GetLevel() != DebugLevel {
		t.Errorf("GetLevel() = %v, want DEBUG", logger.GetLevel())
	}
}
