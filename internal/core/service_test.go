package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"readycore/pkg/domain"
)

// testClock hands out strictly increasing timestamps so that audit ordering
// is deterministic under the most-recent-first trail sort.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewInMemoryService(NewDefaultRulesEngine(), WithNowFunc(newTestClock().Now))
}

func seedProject(t *testing.T, svc *Service) Project {
	t.Helper()
	project, _, err := svc.CreateProject(context.Background(), Project{OrgID: "org-1", Title: "Go Live Q3"})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func seedCriterion(t *testing.T, svc *Service, projectID string, status CriterionStatus) Criterion {
	t.Helper()
	criterion, _, err := svc.CreateCriterion(context.Background(), Criterion{
		ProjectID: projectID,
		Title:     fmt.Sprintf("Criterion %s", status),
		Status:    status,
	})
	if err != nil {
		t.Fatalf("seed criterion: %v", err)
	}
	return criterion
}

func TestEveryStatusTransitionAppendsOneNote(t *testing.T) {
	ctx := context.Background()
	for _, from := range domain.KnownStatuses() {
		for _, to := range domain.KnownStatuses() {
			svc := newTestService(t)
			project := seedProject(t, svc)
			criterion := seedCriterion(t, svc, project.ID, from)
			before := len(svc.EvidenceTrail(criterion.ID))

			updated, _, err := svc.SetCriterionStatus(ctx, criterion.ID, to, "qa")
			if err != nil {
				t.Fatalf("%s -> %s: %v", from, to, err)
			}
			if updated.Status != to {
				t.Fatalf("%s -> %s: status = %s", from, to, updated.Status)
			}
			trail := svc.EvidenceTrail(criterion.ID)
			if len(trail) != before+1 {
				t.Fatalf("%s -> %s: trail grew by %d", from, to, len(trail)-before)
			}
			note := trail[0]
			if note.Kind != EvidenceNote {
				t.Fatalf("%s -> %s: kind = %s", from, to, note.Kind)
			}
			want := fmt.Sprintf("Status changed to: %s", to.Label())
			if note.Narrative != want {
				t.Fatalf("%s -> %s: narrative = %q", from, to, note.Narrative)
			}
			if note.Author != "qa" {
				t.Fatalf("%s -> %s: author = %q", from, to, note.Author)
			}
		}
	}
}

func TestCaveatTransitionNarrative(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)
	criterion := seedCriterion(t, svc, project.ID, StatusInProgress)

	if _, _, err := svc.SetCriterionStatus(context.Background(), criterion.ID, StatusCaveat, "lead"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	trail := svc.EvidenceTrail(criterion.ID)
	if len(trail) == 0 || trail[0].Narrative != "Status changed to: Caveat" {
		t.Fatalf("trail = %+v", trail)
	}
}

func TestSetStatusRejectsUnrecognizedValue(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)
	criterion := seedCriterion(t, svc, project.ID, StatusNotStarted)
	before := len(svc.EvidenceTrail(criterion.ID))

	_, _, err := svc.SetCriterionStatus(context.Background(), criterion.ID, CriterionStatus("blocked"), "qa")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := svc.Store().GetCriterion(criterion.ID)
	if got.Status != StatusNotStarted {
		t.Fatalf("status mutated to %s", got.Status)
	}
	if len(svc.EvidenceTrail(criterion.ID)) != before {
		t.Fatalf("trail grew for rejected transition")
	}
}

func TestSetStatusUnknownCriterion(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.SetCriterionStatus(context.Background(), "missing", StatusDone, "qa"); err == nil {
		t.Fatalf("expected error for unknown criterion")
	}
}

func TestCreateCriterionValidation(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)
	ctx := context.Background()

	if _, _, err := svc.CreateCriterion(ctx, Criterion{ProjectID: project.ID, Title: "  "}); err == nil {
		t.Fatalf("expected title validation error")
	}
	var nf ErrNotFound
	if _, _, err := svc.CreateCriterion(ctx, Criterion{ProjectID: "missing", Title: "Orphan"}); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}

	created, _, err := svc.CreateCriterion(ctx, Criterion{ProjectID: project.ID, Title: "Backups verified"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusNotStarted {
		t.Fatalf("default status = %s", created.Status)
	}
}

func TestStatusValueRuleBlocksInvalidWrites(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)

	_, _, err := svc.CreateCriterion(context.Background(), Criterion{
		ProjectID: project.ID,
		Title:     "Bad status",
		Status:    CriterionStatus("on_hold"),
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !rv.Result.HasBlocking() {
		t.Fatalf("expected blocking violation, got %+v", rv.Result)
	}
}

func TestPatchFieldsAppendsNotes(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)
	criterion := seedCriterion(t, svc, project.ID, StatusInProgress)
	ctx := context.Background()

	owner := "alice"
	updated, _, err := svc.PatchCriterionFields(ctx, criterion.ID, FieldPatch{Owner: &owner, SetOwner: true}, "lead")
	if err != nil {
		t.Fatalf("patch owner: %v", err)
	}
	if updated.Owner == nil || *updated.Owner != "alice" {
		t.Fatalf("owner = %v", updated.Owner)
	}
	trail := svc.EvidenceTrail(criterion.ID)
	if trail[0].Narrative != "Owner changed from unassigned to alice" {
		t.Fatalf("narrative = %q", trail[0].Narrative)
	}

	due := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	if _, _, err := svc.PatchCriterionFields(ctx, criterion.ID, FieldPatch{DueDate: &due, SetDueDate: true}, "lead"); err != nil {
		t.Fatalf("patch due date: %v", err)
	}
	trail = svc.EvidenceTrail(criterion.ID)
	if trail[0].Narrative != "Due date changed to: 2025-07-04" {
		t.Fatalf("narrative = %q", trail[0].Narrative)
	}

	if _, _, err := svc.PatchCriterionFields(ctx, criterion.ID, FieldPatch{DueDate: nil, SetDueDate: true}, "lead"); err != nil {
		t.Fatalf("clear due date: %v", err)
	}
	trail = svc.EvidenceTrail(criterion.ID)
	if trail[0].Narrative != "Due date cleared" {
		t.Fatalf("narrative = %q", trail[0].Narrative)
	}
}

func TestPatchFieldsRejectsEmptyPatch(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)
	criterion := seedCriterion(t, svc, project.ID, StatusNotStarted)

	if _, _, err := svc.PatchCriterionFields(context.Background(), criterion.ID, FieldPatch{}, "lead"); err == nil {
		t.Fatalf("expected empty patch error")
	}
}

func TestCaveatReasonSurvivesStatusChange(t *testing.T) {
	svc := newTestService(t)
	project := seedProject(t, svc)
	criterion := seedCriterion(t, svc, project.ID, StatusInProgress)
	ctx := context.Background()

	if _, _, err := svc.SetCriterionStatus(ctx, criterion.ID, StatusCaveat, "lead"); err != nil {
		t.Fatalf("to caveat: %v", err)
	}
	reason := "pending vendor sign-off"
	if _, _, err := svc.PatchCriterionFields(ctx, criterion.ID, FieldPatch{CaveatReason: &reason, SetCaveatReason: true}, "lead"); err != nil {
		t.Fatalf("set reason: %v", err)
	}
	updated, _, err := svc.SetCriterionStatus(ctx, criterion.ID, StatusDone, "lead")
	if err != nil {
		t.Fatalf("to done: %v", err)
	}
	if updated.CaveatReason == nil || *updated.CaveatReason != reason {
		t.Fatalf("caveat reason = %v", updated.CaveatReason)
	}
}

func TestTemplateCRUDAndDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateTemplate(ctx, CriteriaTemplate{Title: ""}); err == nil {
		t.Fatalf("expected title validation error")
	}
	created, _, err := svc.CreateTemplate(ctx, CriteriaTemplate{Title: "DR runbook", Active: true, Version: 1})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if created.DefaultStatus != StatusNotStarted {
		t.Fatalf("default status = %s", created.DefaultStatus)
	}

	if _, _, err := svc.UpdateTemplate(ctx, created.ID, func(tpl *CriteriaTemplate) error {
		tpl.Active = false
		return nil
	}); err != nil {
		t.Fatalf("update template: %v", err)
	}
	if _, ok := svc.Store().GetTemplate(created.ID); !ok {
		t.Fatalf("template lost after update")
	}
	if _, err := svc.DeleteTemplate(ctx, created.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if len(svc.Templates()) != 0 {
		t.Fatalf("templates = %d", len(svc.Templates()))
	}
}
