package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "challenge:alice@example.com", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	value, err := store.Get(ctx, "challenge:alice@example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(value) != "payload" {
		t.Errorf("Get() = %q, want %q", value, "payload")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Put(ctx, "k", []byte("first"), time.Minute)
	store.Put(ctx, "k", []byte("second"), time.Minute)

	value, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(value) != "second" {
		t.Errorf("Get() = %q, want last written value", value)
	}
}

func TestMemoryStore_ExpiredReadFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	store.Put(ctx, "k", []byte("payload"), 300*time.Second)

	current = current.Add(301 * time.Second)

	_, err := store.Get(ctx, "k")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Put(ctx, "k", []byte("payload"), time.Minute)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}
