/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// capture redirects log output for the duration of a test
func capture(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut := SetOutput(&buf)
	prevLevel := GetLevel()
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(prevOut)
		SetLevel(prevLevel)
	})
	return &buf
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warning ", LevelWarn, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"", LevelError, false},
		{"verbose", LevelError, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLogOutput(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("test message", "key1", "value1", "key2", 42)

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output as JSON: %v\nOutput: %s", err, buf.String())
	}

	if entry.Level != "INFO" {
		t.Errorf("Level = %v, want INFO", entry.Level)
	}
	if entry.Message != "test message" {
		t.Errorf("Message = %v, want 'test message'", entry.Message)
	}
	if entry.Fields["key1"] != "value1" {
		t.Errorf("Fields[key1] = %v, want 'value1'", entry.Fields["key1"])
	}
	if entry.Fields["key2"] != float64(42) {
		t.Errorf("Fields[key2] = %v, want 42", entry.Fields["key2"])
	}
	if entry.Timestamp == "" {
		t.Error("Timestamp is empty")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name   string
		logFn  func(string, ...interface{})
		logged bool
		level  string
	}{
		{"Debug below threshold", Debug, false, "DEBUG"},
		{"Info below threshold", Info, false, "INFO"},
		{"Warn at threshold", Warn, true, "WARN"},
		{"Error above threshold", Error, true, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, LevelWarn)
			tt.logFn("message")

			if got := buf.Len() > 0; got != tt.logged {
				t.Fatalf("logged = %v, want %v (output %q)", got, tt.logged, buf.String())
			}
			if tt.logged && !strings.Contains(buf.String(), tt.level) {
				t.Errorf("output %q does not contain level %s", buf.String(), tt.level)
			}
		})
	}
}

func TestLogWithOddNumberOfKeyValues(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("odd-pairs message", "key1", "value1", "key2")

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry.Fields["key1"] != "value1" {
		t.Errorf("Fields[key1] = %v, want 'value1'", entry.Fields["key1"])
	}
	if _, exists := entry.Fields["key2"]; exists {
		t.Error("key2 should not exist without a value")
	}
}

func TestLogErrorValue(t *testing.T) {
	buf := capture(t, LevelDebug)

	Error("stage_failed", "error", errors.New("connection refused"))

	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry.Fields["error"] != "connection refused" {
		t.Errorf("Fields[error] = %v, want 'connection refused'", entry.Fields["error"])
	}
}
