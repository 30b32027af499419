package redislock

import (
	"context"
	"testing"
)

func TestLocker_KeyPrefix(t *testing.T) {
	if got := New(nil, "").Key("clinic-session"); got != "lock:clinic-session" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := New(nil, " triage ").Key("clinic-session"); got != "triage:clinic-session" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestReadyCheck_NilClient(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for nil client")
	}
}
