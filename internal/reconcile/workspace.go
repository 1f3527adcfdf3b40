// Package reconcile keeps a client-side view of a project's criteria in step
// with the store: mutations apply optimistically to the local view, and a
// failed remote call restores the exact pre-operation snapshot.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"sync"

	"readycore/internal/core"
	"readycore/pkg/domain"
)

// Workspace mirrors one project for the presentation layer. All methods are
// safe for concurrent use; interleaved operations on different criteria do
// not block each other's view reads.
type Workspace struct {
	svc       *core.Service
	projectID string

	mu       sync.Mutex
	criteria map[string]domain.Criterion
	evidence map[string][]domain.Evidence
	// inflight counts captured-but-unsettled operations per criterion. Each
	// operation carries its own snapshot, so overlapping operations on one
	// criterion roll back independently.
	inflight map[string]int

	selectAdd    map[string]struct{}
	selectRemove map[string]struct{}
}

// NewWorkspace constructs a workspace over the service for one project and
// loads the initial view.
func NewWorkspace(svc *core.Service, projectID string) *Workspace {
	w := &Workspace{
		svc:          svc,
		projectID:    projectID,
		criteria:     make(map[string]domain.Criterion),
		evidence:     make(map[string][]domain.Evidence),
		inflight:     make(map[string]int),
		selectAdd:    make(map[string]struct{}),
		selectRemove: make(map[string]struct{}),
	}
	w.Refresh()
	return w
}

// Refresh replaces the local view with the store's current state.
func (w *Workspace) Refresh() {
	rows := w.svc.Criteria(w.projectID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.criteria = make(map[string]domain.Criterion, len(rows))
	w.evidence = make(map[string][]domain.Evidence, len(rows))
	for _, c := range rows {
		w.criteria[c.ID] = c
		w.evidence[c.ID] = w.svc.EvidenceTrail(c.ID)
	}
}

// Criteria returns the local view ordered by category then title.
func (w *Workspace) Criteria() []domain.Criterion {
	rows := w.svc.Criteria(w.projectID)
	w.mu.Lock()
	defer w.mu.Unlock()
	// Overlay optimistic state onto store ordering.
	out := make([]domain.Criterion, 0, len(rows))
	for _, c := range rows {
		if local, ok := w.criteria[c.ID]; ok {
			out = append(out, local)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// Criterion returns the local view of one criterion.
func (w *Workspace) Criterion(id string) (domain.Criterion, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.criteria[id]
	return c, ok
}

// Evidence returns the local audit trail for a criterion, most-recent-first.
func (w *Workspace) Evidence(criterionID string) []domain.Evidence {
	w.mu.Lock()
	defer w.mu.Unlock()
	trail := w.evidence[criterionID]
	out := make([]domain.Evidence, len(trail))
	copy(out, trail)
	return out
}

// capture records the operation in flight, applies mutate to the local view,
// and hands the pre-operation snapshot back to the caller. The snapshot
// travels with the operation so that two overlapping mutations of the same
// criterion never fight over a shared rollback slot.
func (w *Workspace) capture(id string, mutate func(*domain.Criterion)) (domain.Criterion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	current, ok := w.criteria[id]
	if !ok {
		return domain.Criterion{}, core.ErrNotFound{Entity: domain.EntityCriterion, ID: id}
	}
	w.inflight[id]++
	snap := current
	mutate(&current)
	w.criteria[id] = current
	return snap, nil
}

// settle finalizes an in-flight operation: on success the confirmed row
// replaces the optimistic one and the trail is re-read; on failure the
// operation's own snapshot is restored whole. Settling an operation that was
// never captured is a programming defect, not a recoverable state.
func (w *Workspace) settle(id string, snap domain.Criterion, confirmed domain.Criterion, opErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[id] == 0 {
		panic(fmt.Sprintf("reconcile: settle without matching capture for criterion %s", id))
	}
	w.inflight[id]--
	if w.inflight[id] == 0 {
		delete(w.inflight, id)
	}
	if opErr != nil {
		w.criteria[id] = snap
		return
	}
	w.criteria[id] = confirmed
	w.evidence[id] = w.svc.EvidenceTrail(id)
}

// SetStatus flips the criterion status locally, then persists it. On failure
// the criterion reverts to its exact pre-call state and the error surfaces.
func (w *Workspace) SetStatus(ctx context.Context, id string, status domain.CriterionStatus, author string) error {
	snap, err := w.capture(id, func(c *domain.Criterion) {
		c.Status = status
	})
	if err != nil {
		return err
	}
	updated, _, err := w.svc.SetCriterionStatus(ctx, id, status, author)
	w.settle(id, snap, updated, err)
	return err
}

// PatchFields applies an owner/due-date/caveat-reason edit optimistically,
// then persists it with the same rollback contract as SetStatus.
func (w *Workspace) PatchFields(ctx context.Context, id string, patch core.FieldPatch, author string) error {
	snap, err := w.capture(id, func(c *domain.Criterion) {
		if patch.SetOwner {
			c.Owner = patch.Owner
		}
		if patch.SetDueDate {
			c.DueDate = patch.DueDate
		}
		if patch.SetCaveatReason {
			c.CaveatReason = patch.CaveatReason
		}
	})
	if err != nil {
		return err
	}
	updated, _, err := w.svc.PatchCriterionFields(ctx, id, patch, author)
	w.settle(id, snap, updated, err)
	return err
}

// AddNote appends a note and refreshes the criterion's trail on success.
func (w *Workspace) AddNote(ctx context.Context, criterionID, narrative, author string) error {
	_, _, err := w.svc.AddNoteEvidence(ctx, criterionID, narrative, author)
	if err != nil {
		return err
	}
	w.refreshTrail(criterionID)
	return nil
}

// AddLink appends a link entry and its cover note.
func (w *Workspace) AddLink(ctx context.Context, criterionID, narrative, url, author string) error {
	_, _, err := w.svc.AddLinkEvidence(ctx, criterionID, narrative, url, author)
	if err != nil {
		return err
	}
	w.refreshTrail(criterionID)
	return nil
}

// AddFile uploads content and appends the file entry and its cover note.
func (w *Workspace) AddFile(ctx context.Context, criterionID, narrative, filename, contentType string, content io.Reader, author string) error {
	_, _, err := w.svc.AddFileEvidence(ctx, criterionID, narrative, filename, contentType, content, author)
	if err != nil {
		return err
	}
	w.refreshTrail(criterionID)
	return nil
}

// RemoveEvidence deletes a link/file entry and refreshes the owning trail.
func (w *Workspace) RemoveEvidence(ctx context.Context, evidenceID, author string) error {
	target, ok := w.svc.Store().GetEvidence(evidenceID)
	if !ok {
		return core.ErrNotFound{Entity: domain.EntityEvidence, ID: evidenceID}
	}
	if _, err := w.svc.DeleteEvidence(ctx, evidenceID, author); err != nil {
		return err
	}
	w.refreshTrail(target.CriterionID)
	return nil
}

func (w *Workspace) refreshTrail(criterionID string) {
	trail := w.svc.EvidenceTrail(criterionID)
	w.mu.Lock()
	w.evidence[criterionID] = trail
	w.mu.Unlock()
}

// SelectForAdd marks an addable template for allocation. Selecting a template
// already marked for removal, or one already present in the project, is
// rejected: the two selection sets stay disjoint.
func (w *Workspace) SelectForAdd(templateID string) error {
	existing := w.svc.ExistingTemplateIDs(w.projectID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, present := existing[templateID]; present {
		return core.ValidationError{Field: "template", Reason: "already present in project"}
	}
	if _, marked := w.selectRemove[templateID]; marked {
		return core.ValidationError{Field: "template", Reason: "already selected for removal"}
	}
	w.selectAdd[templateID] = struct{}{}
	return nil
}

// SelectForRemove marks an already-present template's criteria for removal.
func (w *Workspace) SelectForRemove(templateID string) error {
	existing := w.svc.ExistingTemplateIDs(w.projectID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, present := existing[templateID]; !present {
		return core.ValidationError{Field: "template", Reason: "not present in project"}
	}
	if _, marked := w.selectAdd[templateID]; marked {
		return core.ValidationError{Field: "template", Reason: "already selected for add"}
	}
	w.selectRemove[templateID] = struct{}{}
	return nil
}

// ClearSelection drops both selection sets without touching the store.
func (w *Workspace) ClearSelection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selectAdd = make(map[string]struct{})
	w.selectRemove = make(map[string]struct{})
}

// Selection returns copies of the current add and remove sets.
func (w *Workspace) Selection() (add, remove []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.selectAdd {
		add = append(add, id)
	}
	for id := range w.selectRemove {
		remove = append(remove, id)
	}
	return add, remove
}

// CommitSelection builds the add batch from the current selection, commits
// adds then removals, and refreshes the view from the authoritative store
// state. Any failure aborts the commit and leaves both selection sets
// untouched so the user can retry.
func (w *Workspace) CommitSelection(ctx context.Context, anchor core.Anchor) error {
	add, remove := w.Selection()
	if len(add) > 0 {
		batch, err := w.svc.BuildAddBatch(w.projectID, add, anchor)
		if err != nil {
			return err
		}
		if _, _, err := w.svc.CommitAdd(ctx, w.projectID, batch); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		if _, _, err := w.svc.CommitRemove(ctx, w.projectID, remove); err != nil {
			return err
		}
	}
	w.ClearSelection()
	w.Refresh()
	return nil
}

// PendingRollbacks reports how many operations are currently in flight with a
// captured snapshot. Useful for asserting the workspace settled.
func (w *Workspace) PendingRollbacks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, n := range w.inflight {
		total += n
	}
	return total
}
