package core

import (
	"context"
	"path/filepath"
	"testing"

	"deckcore/internal/infra/persistence/memory"
	"deckcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	engine := NewDefaultRulesEngine(0)

	store, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageMemory}, engine)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if err := CloseStore(store); err != nil {
		t.Fatalf("close memory: %v", err)
	}

	if _, err := OpenPersistentStore(ctx, StorageConfig{Driver: "etcd"}, engine); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offsets.db")
	store, err := OpenPersistentStore(ctx, StorageConfig{SQLitePath: path}, NewDefaultRulesEngine(0))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = CloseStore(store) }()
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}

	svc := NewService(store)
	if _, _, err := svc.CreateOffsets(ctx, []LabwareOffset{{ID: "a", DefinitionURI: plateURI, LocationSequence: slot("D1")}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := CloseStore(store); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageSQLite, SQLitePath: path}, NewDefaultRulesEngine(0))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = CloseStore(reopened) }()
	if _, ok := reopened.GetOffset("a"); !ok {
		t.Fatalf("expected offset to survive reopen")
	}
}
