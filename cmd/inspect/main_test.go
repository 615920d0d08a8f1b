package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleDoc = `---
status: draft
tags: [a, b]
---
{% case status %}{% when 'draft' %}D{% when 'live' %}L{% endcase %}
{% if featured %}*{% endif %} {{ title }}
`

func writeSample(tb testing.TB) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "sample.md")
	if err := os.WriteFile(path, []byte(sampleDoc), 0644); err != nil {
		tb.Fatalf("failed to write sample: %v", err)
	}
	return path
}

func TestRunTable(t *testing.T) {
	path := writeSample(t)
	var stdout, stderr bytes.Buffer

	if code := run([]string{path}, &stdout, &stderr, false); code != 0 {
		t.Fatalf("run exited with %d: %s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected a header and 4 rows, got:\n%s", stdout.String())
	}
	if strings.Contains(lines[0], "\x1b[") {
		t.Errorf("header is styled without a terminal: %q", lines[0])
	}

	var keys []string
	for _, l := range lines[1:] {
		keys = append(keys, strings.Fields(l)[0])
	}
	if diff := cmp.Diff([]string{"status", "featured", "title", "tags"}, keys); diff != "" {
		t.Errorf("row order mismatch (-want +got):\n%s", diff)
	}

	col := strings.Index(lines[0], "WIDGET")
	for _, l := range lines[1:] {
		if l[col-1] != ' ' || l[col] == ' ' {
			t.Errorf("column not aligned at %d in %q", col, l)
		}
	}
	if !strings.Contains(lines[1], "select") || !strings.Contains(lines[1], "draft, live") {
		t.Errorf("unexpected status row %q", lines[1])
	}
	if !strings.Contains(lines[2], "toggle") {
		t.Errorf("unexpected featured row %q", lines[2])
	}
	if !strings.Contains(lines[4], "array") || !strings.Contains(lines[4], "list") {
		t.Errorf("unexpected tags row %q", lines[4])
	}
}

func TestRunTerminalHeader(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{writeSample(t)}, &stdout, &stderr, true); code != 0 {
		t.Fatalf("run exited with %d: %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "\x1b[1mVARIABLE") {
		t.Errorf("expected a bold header, got %q", stdout.String())
	}
}

func TestRunJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-json", writeSample(t)}, &stdout, &stderr, false); code != 0 {
		t.Fatalf("run exited with %d: %s", code, stderr.String())
	}

	var rows []struct {
		Key            string `json:"key"`
		Kind           string `json:"kind"`
		Widget         string `json:"widget"`
		PossibleValues []any  `json:"possibleValues"`
		Value          any    `json:"value"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &rows); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout.String())
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	status := rows[0]
	if status.Key != "status" || status.Kind != "string" || status.Value != "draft" {
		t.Errorf("unexpected status row %+v", status)
	}
	if diff := cmp.Diff([]any{"draft", "live"}, status.PossibleValues); diff != "" {
		t.Errorf("possible values mismatch (-want +got):\n%s", diff)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"No file", nil, 2},
		{"Too many files", []string{"a", "b"}, 2},
		{"Unknown flag", []string{"-x", "a"}, 2},
		{"Missing file", []string{filepath.Join(t.TempDir(), "missing.md")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr, false); code != tt.want {
				t.Errorf("expected exit code %d, got %d (stderr %q)", tt.want, code, stderr.String())
			}
		})
	}
}
