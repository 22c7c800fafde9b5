package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("test-secret", WithIssuer("test"))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	snap := Snapshot{UserID: "user-42", Username: "alice", Owner: false, Admin: true}
	raw, expiresAt, err := iss.Issue(snap, 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	got, err := iss.Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != snap {
		t.Fatalf("snapshot mismatch: got %+v want %+v", got, snap)
	}
}

func TestVerifyDistinguishesExpired(t *testing.T) {
	clock := time.Now()
	iss, err := NewIssuer("test-secret", WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	raw, _, err := iss.Issue(Snapshot{UserID: "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := iss.Verify(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsGarbageAndWrongSecret(t *testing.T) {
	iss, err := NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	for _, raw := range []string{"", "not.a.token", "a.b"} {
		if _, err := iss.Verify(raw); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", raw, err)
		}
	}

	other, err := NewIssuer("different-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	raw, _, err := other.Issue(Snapshot{UserID: "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Verify(raw); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign signature, got %v", err)
	}
}

func TestSnapshotContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := SnapshotFromContext(ctx); ok {
		t.Fatal("expected no snapshot on empty context")
	}
	snap := Snapshot{UserID: "user-7", Username: "bob", Owner: true}
	ctx = ContextWithSnapshot(ctx, snap)
	got, ok := SnapshotFromContext(ctx)
	if !ok || got != snap {
		t.Fatalf("unexpected snapshot: %+v ok=%v", got, ok)
	}
}
