package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSanitizingHandlerFingerprintsClientIDAndRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("test", "client_id", "user-42", "webhook_secret", "s3cret", "status", "ok")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["client_id"]; ok {
		t.Fatal("client_id should not be present")
	}
	fp, _ := payload["client_id_fp"].(string)
	if !strings.HasPrefix(fp, "fp_") {
		t.Fatalf("unexpected fingerprint: %q", fp)
	}
	if fp != FingerprintID("user-42") {
		t.Fatal("fingerprint should be stable within a process")
	}
	if got, _ := payload["webhook_secret"].(string); got != redactedValue {
		t.Fatalf("expected redacted secret, got %q", got)
	}
	if got, _ := payload["status"].(string); got != "ok" {
		t.Fatalf("expected untouched status, got %q", got)
	}
}

func TestSanitizingHandlerAppliesToWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).With("remote_ip", "10.0.0.1")
	logger.Info("test", slog.Group("req", slog.String("client_id", "u1"), slog.String("path", "/sse/u1")))

	out := buf.String()
	if strings.Contains(out, "10.0.0.1") || strings.Contains(out, `"client_id":"u1"`) {
		t.Fatalf("raw identifiers leaked: %s", out)
	}
	if !strings.Contains(out, "remote_ip_fp") || !strings.Contains(out, "client_id_fp") {
		t.Fatalf("expected fingerprinted keys, got %s", out)
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("user_id", "x"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "user_id_fp") {
		t.Fatalf("expected sanitized user_id key, got %s", buf.String())
	}
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, "text")
	logger.Info("hidden")
	logger.Warn("shown", "client_id", "u1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "client_id_fp=fp_") {
		t.Fatalf("unexpected text output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
