package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewSelectsFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Writer: &buf})
	logger.Debug("hello", "key", "value")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" || record["key"] != "value" {
		t.Fatalf("unexpected record: %v", record)
	}

	buf.Reset()
	logger = New(Config{Level: "warn", Writer: &buf})
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info must be suppressed at warn level, got %q", buf.String())
	}

	buf.Reset()
	logger = New(Config{Format: "text", Writer: &buf})
	logger.Info("textual")
	if !strings.Contains(buf.String(), "msg=textual") {
		t.Fatalf("expected text handler output, got %q", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(New(Config{Writer: &buf}), "orchestrator")
	logger.Info("annotated")
	if !strings.Contains(buf.String(), `"component":"orchestrator"`) {
		t.Fatalf("expected component annotation, got %q", buf.String())
	}
	if WithComponent(nil, "x") != nil {
		t.Fatal("nil logger must stay nil")
	}
}

func TestContextAttribution(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithVHostApp(ctx, "h1#live")

	if id, ok := RequestIDFromContext(ctx); !ok || id != "req-1" {
		t.Fatalf("request id lost: %q %v", id, ok)
	}
	if name, ok := VHostAppFromContext(ctx); !ok || name != "h1#live" {
		t.Fatalf("vhost app lost: %q %v", name, ok)
	}

	var buf bytes.Buffer
	WithContext(ctx, New(Config{Writer: &buf})).Info("tagged")
	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) || !strings.Contains(out, `"vhost_app":"h1#live"`) {
		t.Fatalf("context attribution missing: %q", out)
	}
}

func TestContextIgnoresEmptyValues(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "  ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatal("blank request id must not be stored")
	}
}

func TestRequestLoggerLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	handler := RequestLogger(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/vhosts", nil))

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["status"] != float64(http.StatusTeapot) || record["path"] != "/api/vhosts" {
		t.Fatalf("unexpected request log: %v", record)
	}
}

func TestInitInstallsDefault(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	defer slog.SetDefault(previous)

	Init(Config{Writer: &buf})
	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Fatalf("default logger not installed: %q", buf.String())
	}
}
