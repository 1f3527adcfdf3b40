package core

import (
	"context"
	"errors"
	"testing"

	"readycore/internal/infra/persistence/memory"
	"readycore/pkg/domain"
)

// faultyStore wraps a real store and fails every transaction once armed.
type faultyStore struct {
	PersistentStore
	down bool
}

var errBackendDown = errors.New("backend down")

func (s *faultyStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	if s.down {
		return Result{}, errBackendDown
	}
	return s.PersistentStore.RunInTransaction(ctx, fn)
}

func newFaultyService(t *testing.T) (*Service, *faultyStore) {
	t.Helper()
	store := &faultyStore{PersistentStore: memory.NewStore(NewDefaultRulesEngine())}
	svc := NewService(store, WithNowFunc(newTestClock().Now))
	return svc, store
}

func TestStoreFaultsSurfaceAsPersistenceError(t *testing.T) {
	ctx := context.Background()
	svc, store := newFaultyService(t)
	project := seedProject(t, svc)
	criterion := seedCriterion(t, svc, project.ID, StatusInProgress)

	store.down = true
	checks := []struct {
		name string
		call func() error
	}{
		{"create project", func() error {
			_, _, err := svc.CreateProject(ctx, Project{OrgID: "org-1", Title: "Again"})
			return err
		}},
		{"set status", func() error {
			_, _, err := svc.SetCriterionStatus(ctx, criterion.ID, StatusDone, "qa")
			return err
		}},
		{"add note", func() error {
			_, _, err := svc.AddNoteEvidence(ctx, criterion.ID, "Checked", "qa")
			return err
		}},
		{"commit remove", func() error {
			_, _, err := svc.CommitRemove(ctx, project.ID, []string{"tpl-1"})
			return err
		}},
	}
	for _, check := range checks {
		err := check.call()
		var pe PersistenceError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: err = %v, want PersistenceError", check.name, err)
		}
		if pe.Op == "" {
			t.Fatalf("%s: persistence error without operation", check.name)
		}
		if !errors.Is(err, errBackendDown) {
			t.Fatalf("%s: cause lost: %v", check.name, err)
		}
	}
}

func TestDomainErrorsPassTransactionsUnwrapped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFaultyService(t)
	project := seedProject(t, svc)

	var pe PersistenceError

	_, _, err := svc.SetCriterionStatus(ctx, "missing", StatusDone, "qa")
	var nf ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want not-found", err)
	}
	if errors.As(err, &pe) {
		t.Fatalf("not-found wrapped as persistence failure: %v", err)
	}

	_, _, err = svc.CreateCriterion(ctx, Criterion{
		ProjectID: project.ID,
		Title:     "Bad status",
		Status:    CriterionStatus("on_hold"),
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("err = %v, want rule violation", err)
	}
	if errors.As(err, &pe) {
		t.Fatalf("rule violation wrapped as persistence failure: %v", err)
	}
}

func TestIsValidation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", ValidationError{Field: "status", Reason: "unrecognized"}, true},
		{"wrapped validation", PersistenceError{Op: "x", Err: ValidationError{Reason: "bad"}}, true},
		{"rule violation", domain.RuleViolationError{}, true},
		{"not found", ErrNotFound{Entity: EntityCriterion, ID: "c1"}, false},
		{"persistence", PersistenceError{Op: "commit_add", Err: errBackendDown}, false},
	}
	for _, tc := range cases {
		if got := IsValidation(tc.err); got != tc.want {
			t.Fatalf("%s: IsValidation = %v, want %v", tc.name, got, tc.want)
		}
	}
}
