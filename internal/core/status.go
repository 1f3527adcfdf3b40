package core

import (
	"context"
	"fmt"
	"time"

	"readycore/pkg/domain"
)

// SystemAuthor is recorded on audit notes generated by the service itself.
const SystemAuthor = "system"

// SetCriterionStatus applies a status transition through the dedicated
// status-only write path and appends the audit note once the new status is
// confirmed persisted. Any recognized status may transition to any other
// recognized status. The audit note is written in a second transaction; a
// committed status whose note failed is surfaced as an error with the status
// change left in place.
func (s *Service) SetCriterionStatus(ctx context.Context, id string, status CriterionStatus, author string) (Criterion, Result, error) {
	started := time.Now()
	parsed, ok := domain.ParseStatus(string(status))
	if !ok {
		verr := ValidationError{Field: "status", Reason: fmt.Sprintf("unrecognized status %q", status)}
		s.observe(ctx, "set_criterion_status", started, verr)
		return Criterion{}, Result{}, verr
	}
	var updated Criterion
	res, err := s.runTx(ctx, "set_criterion_status", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCriterionStatus(id, parsed)
		return err
	})
	if err != nil {
		s.observe(ctx, "set_criterion_status", started, err)
		return Criterion{}, res, err
	}
	narrative := fmt.Sprintf("Status changed to: %s", parsed.Label())
	if _, _, noteErr := s.appendSystemNote(ctx, id, narrative, author); noteErr != nil {
		s.observe(ctx, "set_criterion_status", started, noteErr)
		return updated, res, fmt.Errorf("status committed but audit note failed: %w", noteErr)
	}
	s.observe(ctx, "set_criterion_status", started, nil)
	return updated, res, nil
}

// FieldPatch names the criterion fields editable outside the state machine.
// A field is written only when its Set flag is true; a true flag with a nil
// value clears the field.
type FieldPatch struct {
	Owner           *string
	SetOwner        bool
	DueDate         *time.Time
	SetDueDate      bool
	CaveatReason    *string
	SetCaveatReason bool
}

// PatchCriterionFields applies owner/due-date/caveat-reason edits and appends
// one audit note per changed field. The caveat reason is sticky: it is never
// cleared implicitly when status leaves caveat, only by an explicit patch.
func (s *Service) PatchCriterionFields(ctx context.Context, id string, patch FieldPatch, author string) (Criterion, Result, error) {
	started := time.Now()
	if !patch.SetOwner && !patch.SetDueDate && !patch.SetCaveatReason {
		err := ValidationError{Reason: "empty field patch"}
		s.observe(ctx, "patch_criterion_fields", started, err)
		return Criterion{}, Result{}, err
	}
	var before Criterion
	var updated Criterion
	res, err := s.runTx(ctx, "patch_criterion_fields", func(tx Transaction) error {
		var ok bool
		before, ok = tx.FindCriterion(id)
		if !ok {
			return ErrNotFound{Entity: EntityCriterion, ID: id}
		}
		var err error
		updated, err = tx.UpdateCriterion(id, func(c *Criterion) error {
			if patch.SetOwner {
				c.Owner = patch.Owner
			}
			if patch.SetDueDate {
				c.DueDate = patch.DueDate
			}
			if patch.SetCaveatReason {
				c.CaveatReason = patch.CaveatReason
			}
			return nil
		})
		return err
	})
	if err != nil {
		s.observe(ctx, "patch_criterion_fields", started, err)
		return Criterion{}, res, err
	}
	for _, narrative := range fieldPatchNotes(before, patch) {
		if _, _, noteErr := s.appendSystemNote(ctx, id, narrative, author); noteErr != nil {
			s.observe(ctx, "patch_criterion_fields", started, noteErr)
			return updated, res, fmt.Errorf("fields committed but audit note failed: %w", noteErr)
		}
	}
	s.observe(ctx, "patch_criterion_fields", started, nil)
	return updated, res, nil
}

func fieldPatchNotes(before Criterion, patch FieldPatch) []string {
	var notes []string
	if patch.SetOwner {
		notes = append(notes, fmt.Sprintf("Owner changed from %s to %s", ownerLabel(before.Owner), ownerLabel(patch.Owner)))
	}
	if patch.SetDueDate {
		if patch.DueDate == nil {
			notes = append(notes, "Due date cleared")
		} else {
			notes = append(notes, fmt.Sprintf("Due date changed to: %s", patch.DueDate.UTC().Format("2006-01-02")))
		}
	}
	if patch.SetCaveatReason {
		if patch.CaveatReason == nil {
			notes = append(notes, "Caveat reason cleared")
		} else {
			notes = append(notes, fmt.Sprintf("Caveat reason updated: %s", *patch.CaveatReason))
		}
	}
	return notes
}

func ownerLabel(owner *string) string {
	if owner == nil || *owner == "" {
		return "unassigned"
	}
	return *owner
}

// appendSystemNote writes a note-kind audit entry attributed to author, or to
// the service itself when author is empty.
func (s *Service) appendSystemNote(ctx context.Context, criterionID, narrative, author string) (Evidence, Result, error) {
	if author == "" {
		author = SystemAuthor
	}
	now := s.nowFn()
	note := Evidence{
		CriterionID: criterionID,
		Kind:        EvidenceNote,
		Narrative:   narrative,
		Author:      author,
		RecordedAt:  now,
	}
	var created Evidence
	res, err := s.runTx(ctx, "append_system_note", func(tx Transaction) error {
		var err error
		created, err = tx.CreateEvidence(note)
		return err
	})
	return created, res, err
}
