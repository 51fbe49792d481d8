package session_test

import (
	"testing"

	"ludoserver/internal/session"
)

func TestRegistryBindReplacesPrior(t *testing.T) {
	r := session.NewRegistry()

	r.Bind("u1", "handle-a")
	if h, ok := r.Handle("u1"); !ok || h != "handle-a" {
		t.Fatalf("expected handle-a bound to u1, got %q ok=%v", h, ok)
	}

	r.Bind("u1", "handle-b")
	if h, ok := r.Handle("u1"); !ok || h != "handle-b" {
		t.Fatalf("expected rebind to handle-b, got %q ok=%v", h, ok)
	}
	if _, ok := r.UserID("handle-a"); ok {
		t.Errorf("stale handle-a mapping should have been cleared on rebind")
	}
}

func TestRegistryIsCurrent(t *testing.T) {
	r := session.NewRegistry()
	r.Bind("u1", "handle-a")

	if !r.IsCurrent("u1", "handle-a") {
		t.Errorf("expected handle-a to be current for u1")
	}

	r.Bind("u1", "handle-b")
	if r.IsCurrent("u1", "handle-a") {
		t.Errorf("handle-a should no longer be current after rebind")
	}
}

func TestRegistryUnbindIgnoresStaleHandle(t *testing.T) {
	r := session.NewRegistry()
	r.Bind("u1", "handle-a")
	r.Bind("u1", "handle-b")

	// handle-a already lost the reconnect race; unbinding it must not
	// clobber the newer handle-b mapping.
	r.Unbind("handle-a")

	if h, ok := r.Handle("u1"); !ok || h != "handle-b" {
		t.Errorf("expected handle-b to remain bound, got %q ok=%v", h, ok)
	}
}

func TestRegistryCount(t *testing.T) {
	r := session.NewRegistry()
	r.Bind("u1", "h1")
	r.Bind("u2", "h2")

	if got := r.Count(); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}

	r.Unbind("h1")
	if got := r.Count(); got != 1 {
		t.Errorf("expected count 1 after unbind, got %d", got)
	}
}
