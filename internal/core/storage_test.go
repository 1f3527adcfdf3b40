package core

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("READYCORE_STORAGE_DRIVER", "memory")

	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := NewService(store)
	if _, _, err := svc.CreateProject(context.Background(), Project{Title: "Smoke"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
}

func TestOpenPersistentStoreSQLitePath(t *testing.T) {
	t.Setenv("READYCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("READYCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))

	store, err := OpenPersistentStore(NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store == nil {
		t.Fatalf("nil store")
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("READYCORE_STORAGE_DRIVER", "flatfile")

	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
