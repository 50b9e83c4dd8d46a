package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWith(&buf, "json"); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}

	Named("engine").Info(context.Background(), "score computed",
		String("user_id", "u1"),
		Int("score", 70),
		Bool("fallback", false),
		Duration("took", 3*time.Millisecond),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "score computed" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["component"] != "engine" {
		t.Errorf("component = %v", rec["component"])
	}
	if rec["user_id"] != "u1" {
		t.Errorf("user_id = %v", rec["user_id"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source = %q, want caller file", src)
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := InitWith(&bytes.Buffer{}, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWith(&buf, "text"); err != nil {
		t.Fatal(err)
	}
	defer SetLevel(0)

	if err := SetLevelString("warn"); err != nil {
		t.Fatal(err)
	}
	Get().Info(context.Background(), "hidden")
	Get().Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}

	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWith(&buf, "text"); err != nil {
		t.Fatal(err)
	}

	Get().With(String("conn_id", "c-1")).Info(context.Background(), "joined")
	if !strings.Contains(buf.String(), "conn_id=c-1") {
		t.Errorf("bound field missing: %q", buf.String())
	}
}
