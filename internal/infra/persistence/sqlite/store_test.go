package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"readycore/pkg/domain"
)

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readiness.db")

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	var project domain.Project
	var criterion domain.Criterion
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		project, err = tx.CreateProject(domain.Project{Title: "Launch"})
		if err != nil {
			return err
		}
		criterion, err = tx.CreateCriterion(domain.Criterion{ProjectID: project.ID, Title: "Firewall rules", Status: domain.StatusInProgress})
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	restored, ok := reopened.GetCriterion(criterion.ID)
	if !ok {
		t.Fatalf("criterion lost across reopen")
	}
	if restored.Status != domain.StatusInProgress {
		t.Fatalf("status not persisted, got %s", restored.Status)
	}
	if _, ok := reopened.GetProject(project.ID); !ok {
		t.Fatalf("project lost across reopen")
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readiness.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(domain.Project{Title: "Partial"}); err != nil {
			return err
		}
		return context.Canceled
	}); err == nil {
		t.Fatalf("expected transaction error")
	}

	if got := len(store.ListProjects()); got != 0 {
		t.Fatalf("aborted transaction leaked %d projects", got)
	}
}

func TestDefaultPath(t *testing.T) {
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("open default store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() == "" {
		t.Fatalf("expected a default path")
	}
}
