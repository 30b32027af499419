package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPreflight_AllHealthy(t *testing.T) {
	err := Preflight(context.Background(), time.Second,
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "skipped"},
	)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestPreflight_CollectsFailures(t *testing.T) {
	err := Preflight(context.Background(), time.Second,
		ReadyCheck{Name: "db", Check: func(context.Context) error { return errors.New("down") }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return nil }},
		ReadyCheck{Check: func(context.Context) error { return errors.New("refused") }},
	)
	if err == nil {
		t.Fatal("expected preflight error")
	}
	var pe *PreflightError
	if !errors.As(err, &pe) || len(pe.Failures) != 2 {
		t.Fatalf("expected *PreflightError with two failures, got %T %v", err, err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "db: down") || !strings.Contains(msg, "dependency: refused") {
		t.Fatalf("unexpected message %q", msg)
	}
	if strings.Contains(msg, "redis") {
		t.Fatalf("healthy check reported as failure: %q", msg)
	}
}

func TestPreflight_AppliesTimeout(t *testing.T) {
	err := Preflight(context.Background(), 10*time.Millisecond,
		ReadyCheck{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	if err == nil || !strings.Contains(err.Error(), "slow") {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}

func TestNewLogger_WritesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "triage-service", "warn")
	logger.Info("dropped")
	logger.Warn("kept", "queue_reference", "ref-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if rec["service"] != "triage-service" || rec["queue_reference"] != "ref-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("expected debug")
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("expected info fallback")
	}
}
