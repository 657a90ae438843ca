package state

import (
	"context"
	"errors"
	"testing"

	"plugind/pkg/plugin"
)

func TestMemoryStoreSaveAndLoadEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Save(ctx, "greeter", plugin.StatusEnabled, map[string]any{"greeting": "Hallo"}); err != nil {
		t.Fatalf("save greeter: %v", err)
	}
	if err := store.Save(ctx, "theme", plugin.StatusDisabled, nil); err != nil {
		t.Fatalf("save theme: %v", err)
	}

	enabled, err := store.LoadEnabled(ctx)
	if err != nil {
		t.Fatalf("load enabled: %v", err)
	}
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled record, got %d", len(enabled))
	}
	if enabled[0].Name != "greeter" {
		t.Fatalf("unexpected record: %+v", enabled[0])
	}
	if enabled[0].Config["greeting"] != "Hallo" {
		t.Fatalf("expected config to round-trip, got %v", enabled[0].Config)
	}
}

func TestMemoryStoreSaveUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Save(ctx, "greeter", plugin.StatusEnabled, nil); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(ctx, "greeter", plugin.StatusDisabled, nil); err != nil {
		t.Fatalf("second save: %v", err)
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single upserted record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != plugin.StatusDisabled {
		t.Fatalf("expected disabled status, got %s", rec.Status)
	}
	if rec.EnabledAt == 0 || rec.DisabledAt == 0 {
		t.Fatalf("expected both timestamps stamped, got %+v", rec)
	}
}

func TestMemoryStoreGetClonesConfig(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Save(ctx, "greeter", plugin.StatusEnabled, map[string]any{"k": "v"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := store.Get(ctx, "greeter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rec.Config["k"] = "mutated"

	again, err := store.Get(ctx, "greeter")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.Config["k"] != "v" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Save(ctx, "greeter", plugin.StatusEnabled, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "greeter"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "greeter"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}

	// Deleting a missing record stays a no-op.
	if err := store.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
