package store

import (
	"context"
	"testing"

	"QLDCwebserver/internal/store/memory"
)

func TestNamespaceIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	a := Namespace(base, "profile:a")
	b := Namespace(base, "profile:b")

	if err := a.Set(ctx, "login_failed_attempts", []byte("2")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok, _ := b.Get(ctx, "login_failed_attempts"); ok {
		t.Fatalf("expected namespaces to be isolated")
	}
	got, ok, err := base.Get(ctx, "profile:a:login_failed_attempts")
	if err != nil || !ok || string(got) != "2" {
		t.Fatalf("prefixed key: got %q ok=%v err=%v", got, ok, err)
	}

	if err := a.Delete(ctx, "login_failed_attempts"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if base.Len() != 0 {
		t.Fatalf("expected delete through namespace")
	}
}

func TestNamespaceEmptyPrefix(t *testing.T) {
	base := memory.New()
	if Namespace(base, "") != base {
		t.Fatalf("expected empty prefix to return the store unchanged")
	}
}
