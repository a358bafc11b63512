package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/csabourin/wampums-client/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

// unsignedJWT builds a syntactically valid JWT with the given exp claim.
// The signature is garbage; the store never verifies it.
func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"exp": exp.Unix(), "sub": "42"})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return fmt.Sprintf("%s.%s.sig", header, base64.RawURLEncoding.EncodeToString(payload))
}

func TestStore_TokenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok := store.Token(ctx); ok {
		t.Error("Token() on empty store should return ok=false")
	}

	tok := unsignedJWT(t, time.Now().Add(time.Hour))
	if err := store.SetToken(ctx, tok); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}

	got, ok := store.Token(ctx)
	if !ok {
		t.Fatal("Token() after SetToken should return ok=true")
	}
	if got != tok {
		t.Errorf("Token() = %q, want %q", got, tok)
	}
}

func TestStore_ExpiredTokenTreatedAsAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tok := unsignedJWT(t, time.Now().Add(-time.Minute))
	if err := store.SetToken(ctx, tok); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}

	if _, ok := store.Token(ctx); ok {
		t.Error("Token() with a passed exp claim should return ok=false")
	}
}

func TestStore_OpaqueTokenNotExpiredLocally(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetToken(ctx, "opaque-session-token"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}

	got, ok := store.Token(ctx)
	if !ok || got != "opaque-session-token" {
		t.Errorf("Token() = (%q, %v), want opaque token with ok=true", got, ok)
	}
}

func TestStore_ClearKeepsOrganization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetToken(ctx, unsignedJWT(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	if err := store.SetOrganizationID(ctx, "org-7"); err != nil {
		t.Fatalf("SetOrganizationID() error = %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if _, ok := store.Token(ctx); ok {
		t.Error("Token() after Clear should return ok=false")
	}
	org, ok := store.OrganizationID(ctx)
	if !ok || org != "org-7" {
		t.Errorf("OrganizationID() after Clear = (%q, %v), want (org-7, true)", org, ok)
	}
}

func TestStore_OrganizationOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetOrganizationID(ctx, "org-1"); err != nil {
		t.Fatalf("SetOrganizationID() error = %v", err)
	}
	if err := store.SetOrganizationID(ctx, "org-2"); err != nil {
		t.Fatalf("SetOrganizationID() error = %v", err)
	}

	org, _ := store.OrganizationID(ctx)
	if org != "org-2" {
		t.Errorf("OrganizationID() = %q, want org-2", org)
	}
}
