package core

import (
	"context"
	"time"
)

// Anchor selects which project reference date due-date computation subtracts
// from.
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorGoLive Anchor = "go_live"
)

// TemplateDiff partitions a template catalog against a project's existing
// template-id set. Addable and Present are disjoint and together cover the
// catalog.
type TemplateDiff struct {
	Addable []CriteriaTemplate
	Present []CriteriaTemplate
}

// ListEligibleTemplates returns the active templates visible to an
// organisation: global templates plus those scoped to orgID, ordered by
// category then title.
func (s *Service) ListEligibleTemplates(orgID string) []CriteriaTemplate {
	var eligible []CriteriaTemplate
	for _, tpl := range s.store.ListTemplates() {
		if !tpl.Active {
			continue
		}
		if tpl.OrgID != nil && *tpl.OrgID != orgID {
			continue
		}
		eligible = append(eligible, tpl)
	}
	return eligible
}

// ExistingTemplateIDs returns the authoritative set of template ids already
// present among the project's criteria. Criteria without a template reference
// never appear in the set.
func (s *Service) ExistingTemplateIDs(projectID string) map[string]struct{} {
	existing := make(map[string]struct{})
	for _, criterion := range s.store.ListCriteria(projectID) {
		if criterion.TemplateID != nil {
			existing[*criterion.TemplateID] = struct{}{}
		}
	}
	return existing
}

// DiffAgainstProject splits templates into those still addable to the project
// and those already present.
func (s *Service) DiffAgainstProject(projectID string, templates []CriteriaTemplate) TemplateDiff {
	existing := s.ExistingTemplateIDs(projectID)
	var diff TemplateDiff
	for _, tpl := range templates {
		if _, ok := existing[tpl.ID]; ok {
			diff.Present = append(diff.Present, tpl)
		} else {
			diff.Addable = append(diff.Addable, tpl)
		}
	}
	return diff
}

// ComputeDueDate derives a criterion due date by subtracting the template's
// default offset from the anchor date. A nil offset or nil anchor yields nil.
// Arithmetic runs on a fixed UTC calendar in whole days.
func ComputeDueDate(template CriteriaTemplate, anchor *time.Time) *time.Time {
	if template.DueOffsetDays == nil || anchor == nil {
		return nil
	}
	a := anchor.UTC()
	due := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -*template.DueOffsetDays)
	return &due
}

// AnchorDate picks the project reference date for the given anchor.
func AnchorDate(project Project, anchor Anchor) *time.Time {
	switch anchor {
	case AnchorStart:
		return project.StartDate
	default:
		return project.GoLiveDate
	}
}

// BuildAddBatch synthesizes criterion rows for the selected, still-addable
// templates. Each row copies the template's descriptive fields, takes the
// template's default status, computes its due date from the project anchor,
// and stamps provenance metadata naming the originating template version.
// The batch is returned for review; nothing is inserted here.
func (s *Service) BuildAddBatch(projectID string, templateIDs []string, anchor Anchor) ([]Criterion, error) {
	project, ok := s.store.GetProject(projectID)
	if !ok {
		return nil, ErrNotFound{Entity: EntityProject, ID: projectID}
	}
	existing := s.ExistingTemplateIDs(projectID)
	anchorDate := AnchorDate(project, anchor)
	now := s.nowFn()

	var batch []Criterion
	for _, id := range templateIDs {
		if _, present := existing[id]; present {
			continue
		}
		tpl, ok := s.store.GetTemplate(id)
		if !ok {
			return nil, ErrNotFound{Entity: EntityTemplate, ID: id}
		}
		if !tpl.Active {
			return nil, ValidationError{Field: "template", Reason: "inactive template " + id}
		}
		templateID := tpl.ID
		status := tpl.DefaultStatus
		if status == "" {
			status = StatusNotStarted
		}
		metadata := map[string]any{
			"source":           "template",
			"template_version": tpl.Version,
			"allocated_at":     now.Format(time.RFC3339),
		}
		if tpl.Description != "" {
			metadata["description"] = tpl.Description
		}
		if prompts, ok := tpl.Metadata["prompts"]; ok {
			metadata["prompts"] = prompts
		}
		batch = append(batch, Criterion{
			ProjectID:        projectID,
			TemplateID:       &templateID,
			Title:            tpl.Title,
			Category:         tpl.Category,
			Severity:         tpl.Severity,
			Status:           status,
			DueDate:          ComputeDueDate(tpl, anchorDate),
			EvidenceRequired: tpl.EvidenceRequired,
			Metadata:         metadata,
		})
	}
	return batch, nil
}

// CommitAdd inserts the reviewed batch in one transaction, then re-fetches the
// project's template-id set from the store as the authoritative membership. A
// failure aborts the whole batch; no rows are retried individually.
func (s *Service) CommitAdd(ctx context.Context, projectID string, batch []Criterion) (map[string]struct{}, Result, error) {
	started := time.Now()
	res, err := s.runTx(ctx, "commit_add", func(tx Transaction) error {
		_, err := tx.InsertCriteria(batch)
		return err
	})
	s.observe(ctx, "commit_add", started, err)
	if err != nil {
		return nil, res, err
	}
	return s.ExistingTemplateIDs(projectID), res, nil
}

// CommitRemove deletes the project's criteria allocated from the given
// templates in one transaction, then re-fetches the authoritative template-id
// set.
func (s *Service) CommitRemove(ctx context.Context, projectID string, templateIDs []string) (map[string]struct{}, Result, error) {
	started := time.Now()
	res, err := s.runTx(ctx, "commit_remove", func(tx Transaction) error {
		_, err := tx.DeleteCriteriaByTemplate(projectID, templateIDs)
		return err
	})
	s.observe(ctx, "commit_remove", started, err)
	if err != nil {
		return nil, res, err
	}
	return s.ExistingTemplateIDs(projectID), res, nil
}
