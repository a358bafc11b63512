package cache

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, ok := store.Get(ctx, "nonexistent"); ok {
		t.Error("Get on empty store should return ok=false")
	}

	key := "test-key"
	value := []byte("test-value")
	if err := store.Set(ctx, key, value, 5*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := store.Get(ctx, key)
	if !ok {
		t.Error("Get after Set should return ok=true")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Get(ctx, key); ok {
		t.Error("Get after Delete should return ok=false")
	}

	// Delete is idempotent.
	if err := store.Delete(ctx, "nonexistent"); err != nil {
		t.Errorf("Delete on non-existent key should not error, got: %v", err)
	}
}

func TestMemoryStore_ExpiredEntriesRetainedForStaleReads(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	key := "expiring-key"
	value := []byte("expiring-value")
	if err := store.Set(ctx, key, value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, ok := store.Get(ctx, key); ok {
		t.Error("Get past TTL should return ok=false")
	}
	got, ok := store.GetIgnoringExpiration(ctx, key)
	if !ok || !bytes.Equal(got, value) {
		t.Errorf("GetIgnoringExpiration = (%q, %v), want (%q, true)", got, ok, value)
	}
}

func TestMemoryStore_DeleteMany(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, k, []byte(k), time.Minute); err != nil {
			t.Fatalf("Set(%q) error = %v", k, err)
		}
	}
	if err := store.DeleteMany(ctx, []string{"a", "c"}); err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if _, ok := store.Get(ctx, "b"); !ok {
		t.Error("key b should survive DeleteMany")
	}
	if _, ok := store.Get(ctx, "a"); ok {
		t.Error("key a should be deleted")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "shared", []byte("v"), time.Minute)
			store.Get(ctx, "shared")
			store.GetIgnoringExpiration(ctx, "shared")
		}()
	}
	wg.Wait()
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid", "participants_v2?organization_id=7", nil},
		{"empty", "", ErrInvalidKey},
		{"whitespace", "   ", ErrInvalidKey},
		{"newline", "bad\nkey", ErrInvalidKey},
		{"too long", string(make([]byte, MaxKeyLength+1)), ErrKeyTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if err != tt.wantErr {
				t.Errorf("ValidateKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
