package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentApp})

	logger.WithComponent(ComponentLedger).Info("loaded", FieldRows, 3)
	logger.LogError(context.Background(), "save failed", errors.New("boom"), ErrorTypeStore, OpSave,
		NewFields().WithFilters("Alta", ""))

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0][FieldComponent] != ComponentLedger {
		t.Errorf("component = %v, want ledger", lines[0][FieldComponent])
	}
	if lines[1][FieldError] != "boom" || lines[1][FieldErrorType] != ErrorTypeStore || lines[1][FieldOperation] != OpSave {
		t.Errorf("unexpected error line: %v", lines[1])
	}
	if lines[1][FieldPriority] != "Alta" {
		t.Errorf("priority filter missing: %v", lines[1])
	}
	if _, ok := lines[1][FieldStatus]; ok {
		t.Errorf("unset status filter should be omitted")
	}
}

func TestAccessLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	h := Middleware(logger)(AccessLog(func(*http.Request) string { return "10.0.0.1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/missing" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte("ok"))
		})))

	for _, path := range []string{"/", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["level"] != "INFO" || lines[0][FieldStatusCode] != float64(200) {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	if lines[1]["level"] != "WARN" || lines[1][FieldStatusCode] != float64(404) {
		t.Errorf("unexpected second line: %v", lines[1])
	}
	if lines[1][FieldClientIP] != "10.0.0.1" {
		t.Errorf("client ip missing: %v", lines[1])
	}
}
