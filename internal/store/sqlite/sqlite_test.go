package sqlite

import (
	"context"
	"testing"

	"QLDCwebserver/internal/throttle"
)

func TestStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("4")); err != nil {
		t.Fatalf("Set (upsert): %v", err)
	}

	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(got) != "4" {
		t.Fatalf("Get: got %q ok=%v err=%v", got, ok, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	th := throttle.Load(ctx, s, nil)
	th.RecordFailedAttempt(ctx)
	th.RecordFailedAttempt(ctx)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	reloaded := throttle.Load(ctx, s, nil)
	if got := reloaded.RemainingAttempts(); got != throttle.DefaultMaxAttempts-2 {
		t.Fatalf("remaining attempts after reopen: got %d", got)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty data dir")
	}
}
