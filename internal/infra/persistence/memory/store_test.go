package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"readycore/pkg/domain"
)

func seedProject(t *testing.T, store *Store) Project {
	t.Helper()
	var project Project
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		project, err = tx.CreateProject(Project{Title: "Launch readiness"})
		return err
	}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func TestCreateAndListCriteriaOrdering(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	titles := [][2]string{
		{"security", "TLS certificates"},
		{"operations", "Runbook written"},
		{"operations", "Alerting configured"},
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, pair := range titles {
			if _, err := tx.CreateCriterion(Criterion{ProjectID: project.ID, Category: pair[0], Title: pair[1], Status: domain.StatusNotStarted}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("create criteria: %v", err)
	}

	listed := store.ListCriteria(project.ID)
	if len(listed) != 3 {
		t.Fatalf("expected 3 criteria, got %d", len(listed))
	}
	want := []string{"Alerting configured", "Runbook written", "TLS certificates"}
	for i, title := range want {
		if listed[i].Title != title {
			t.Fatalf("position %d: got %q want %q", i, listed[i].Title, title)
		}
	}
}

func TestUpdateCriterionKeepsIdentityImmutable(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	templateID := "tpl-1"
	var created Criterion
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateCriterion(Criterion{ProjectID: project.ID, TemplateID: &templateID, Title: "Backups verified", Status: domain.StatusNotStarted})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateCriterion(created.ID, func(c *Criterion) error {
			c.ProjectID = "other"
			c.TemplateID = nil
			c.Title = "Backups verified nightly"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, ok := store.GetCriterion(created.ID)
	if !ok {
		t.Fatalf("criterion missing after update")
	}
	if updated.ProjectID != project.ID {
		t.Fatalf("project id must be immutable, got %q", updated.ProjectID)
	}
	if updated.TemplateID == nil || *updated.TemplateID != templateID {
		t.Fatalf("template id must be immutable, got %v", updated.TemplateID)
	}
	if updated.Title != "Backups verified nightly" {
		t.Fatalf("title should have changed, got %q", updated.Title)
	}
}

func TestUpdateCriterionStatusTouchesOnlyStatus(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	owner := "casey"
	var created Criterion
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateCriterion(Criterion{ProjectID: project.ID, Title: "DNS cutover plan", Owner: &owner, Status: domain.StatusNotStarted})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateCriterionStatus(created.ID, domain.StatusInProgress)
		return err
	}); err != nil {
		t.Fatalf("status update: %v", err)
	}

	after, _ := store.GetCriterion(created.ID)
	if after.Status != domain.StatusInProgress {
		t.Fatalf("status not applied: %s", after.Status)
	}
	if after.Owner == nil || *after.Owner != owner {
		t.Fatalf("owner clobbered by status write")
	}
}

func TestEvidenceOrderingMostRecentFirst(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var criterion Criterion
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		criterion, err = tx.CreateCriterion(Criterion{ProjectID: project.ID, Title: "Load test", Status: domain.StatusNotStarted})
		if err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if _, err := tx.CreateEvidence(Evidence{CriterionID: criterion.ID, Kind: domain.EvidenceNote, Narrative: "entry", Author: "q", RecordedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed evidence: %v", err)
	}

	trail := store.ListEvidence(criterion.ID)
	if len(trail) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(trail))
	}
	for i := 1; i < len(trail); i++ {
		if trail[i].RecordedAt.After(trail[i-1].RecordedAt) {
			t.Fatalf("evidence not most-recent-first at %d", i)
		}
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	var criterion Criterion
	var entry Evidence
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		criterion, err = tx.CreateCriterion(Criterion{ProjectID: project.ID, Title: "Cutover checklist", Status: domain.StatusNotStarted})
		if err != nil {
			return err
		}
		entry, err = tx.CreateEvidence(Evidence{CriterionID: criterion.ID, Kind: domain.EvidenceNote, Narrative: "kickoff", Author: "q"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteProject(project.ID)
	}); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	if _, ok := store.GetCriterion(criterion.ID); ok {
		t.Fatalf("criterion should cascade on project delete")
	}
	if _, ok := store.GetEvidence(entry.ID); ok {
		t.Fatalf("evidence should cascade on project delete")
	}
}

func TestDeleteCriteriaByTemplate(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	tplA, tplB := "tpl-a", "tpl-b"
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		rows := []Criterion{
			{ProjectID: project.ID, TemplateID: &tplA, Title: "From A", Status: domain.StatusNotStarted},
			{ProjectID: project.ID, TemplateID: &tplB, Title: "From B", Status: domain.StatusNotStarted},
			{ProjectID: project.ID, Title: "Manual", Status: domain.StatusNotStarted},
		}
		_, err := tx.InsertCriteria(rows)
		return err
	}); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	var removed int
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		removed, err = tx.DeleteCriteriaByTemplate(project.ID, []string{tplA})
		return err
	}); err != nil {
		t.Fatalf("delete by template: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	remaining := store.ListCriteria(project.ID)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining criteria, got %d", len(remaining))
	}
	for _, c := range remaining {
		if c.TemplateID != nil && *c.TemplateID == tplA {
			t.Fatalf("criterion from tpl-a survived removal")
		}
	}
}

type blockEverythingRule struct{}

func (blockEverythingRule) Name() string { return "block_everything" }

func (blockEverythingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block_everything", Severity: domain.SeverityBlock, Message: "no writes"})
	}
	return res, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverythingRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateProject(Project{Title: "Doomed"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(store.ListProjects()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestExportImportStateRoundTrip(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	snapshot := store.ExportState()
	if len(snapshot.Projects) != 1 {
		t.Fatalf("expected 1 project in snapshot")
	}

	other := NewStore(nil)
	other.ImportState(snapshot)
	restored, ok := other.GetProject(project.ID)
	if !ok || restored.Title != project.Title {
		t.Fatalf("import did not restore project")
	}
}

func TestCloneOnReadIsolation(t *testing.T) {
	store := NewStore(nil)
	project := seedProject(t, store)

	var created Criterion
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateCriterion(Criterion{ProjectID: project.ID, Title: "Immutable read", Status: domain.StatusNotStarted, Metadata: map[string]any{"k": "v"}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	read, _ := store.GetCriterion(created.ID)
	read.Metadata["k"] = "mutated"
	again, _ := store.GetCriterion(created.ID)
	if again.Metadata["k"] != "v" {
		t.Fatalf("store state leaked through read clone")
	}
}
