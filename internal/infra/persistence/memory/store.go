// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"readycore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Criterion aliases domain.Criterion for in-memory persistence operations.
	Criterion = domain.Criterion
	// Evidence aliases domain.Evidence.
	Evidence = domain.Evidence
	// CriteriaTemplate aliases domain.CriteriaTemplate.
	CriteriaTemplate = domain.CriteriaTemplate
	// Project aliases domain.Project.
	Project = domain.Project
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	projects  map[string]Project
	criteria  map[string]Criterion
	evidence  map[string]Evidence
	templates map[string]CriteriaTemplate
}

func newMemoryState() memoryState {
	return memoryState{
		projects:  make(map[string]Project),
		criteria:  make(map[string]Criterion),
		evidence:  make(map[string]Evidence),
		templates: make(map[string]CriteriaTemplate),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.criteria {
		cloned.criteria[k] = cloneCriterion(v)
	}
	for k, v := range s.evidence {
		cloned.evidence[k] = cloneEvidence(v)
	}
	for k, v := range s.templates {
		cloned.templates[k] = cloneTemplate(v)
	}
	return cloned
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64Ptr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cloned := make(map[string]any, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

func cloneProject(p Project) Project {
	cp := p
	cp.StartDate = cloneTimePtr(p.StartDate)
	cp.GoLiveDate = cloneTimePtr(p.GoLiveDate)
	return cp
}

func cloneCriterion(c Criterion) Criterion {
	cp := c
	cp.TemplateID = cloneStringPtr(c.TemplateID)
	cp.Owner = cloneStringPtr(c.Owner)
	cp.DueDate = cloneTimePtr(c.DueDate)
	cp.CaveatReason = cloneStringPtr(c.CaveatReason)
	cp.Metadata = cloneMetadata(c.Metadata)
	return cp
}

func cloneEvidence(e Evidence) Evidence {
	cp := e
	cp.URL = cloneStringPtr(e.URL)
	cp.FilePath = cloneStringPtr(e.FilePath)
	cp.FileMime = cloneStringPtr(e.FileMime)
	cp.FileSize = cloneInt64Ptr(e.FileSize)
	cp.FileURL = cloneStringPtr(e.FileURL)
	return cp
}

func cloneTemplate(t CriteriaTemplate) CriteriaTemplate {
	cp := t
	cp.OrgID = cloneStringPtr(t.OrgID)
	cp.DueOffsetDays = cloneIntPtr(t.DueOffsetDays)
	cp.Metadata = cloneMetadata(t.Metadata)
	return cp
}

func mustPayload(v any) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(v)
	if err != nil {
		panic(fmt.Errorf("memory store change payload: %w", err))
	}
	return payload
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Projects  map[string]Project          `json:"projects"`
	Criteria  map[string]Criterion        `json:"criteria"`
	Evidence  map[string]Evidence         `json:"evidence"`
	Templates map[string]CriteriaTemplate `json:"criteria_templates"`
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for created/updated stamps. Tests only.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ImportState replaces the committed state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range snapshot.Criteria {
		state.criteria[k] = cloneCriterion(v)
	}
	for k, v := range snapshot.Evidence {
		state.evidence[k] = cloneEvidence(v)
	}
	for k, v := range snapshot.Templates {
		state.templates[k] = cloneTemplate(v)
	}
	s.state = state
}

// ExportState returns a snapshot of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := Snapshot{
		Projects:  make(map[string]Project, len(s.state.projects)),
		Criteria:  make(map[string]Criterion, len(s.state.criteria)),
		Evidence:  make(map[string]Evidence, len(s.state.evidence)),
		Templates: make(map[string]CriteriaTemplate, len(s.state.templates)),
	}
	for k, v := range s.state.projects {
		snapshot.Projects[k] = cloneProject(v)
	}
	for k, v := range s.state.criteria {
		snapshot.Criteria[k] = cloneCriterion(v)
	}
	for k, v := range s.state.evidence {
		snapshot.Evidence[k] = cloneEvidence(v)
	}
	for k, v := range s.state.templates {
		snapshot.Templates[k] = cloneTemplate(v)
	}
	return snapshot
}

// transaction implements domain.Transaction against a cloned state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

// view exposes a read-only snapshot of transactional state to rules.
type view struct {
	state *memoryState
}

var _ TransactionView = view{}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules are evaluated against the resulting state before commit;
// blocking violations abort with a RuleViolationError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view of the in-flight transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: &tx.state}
}

// CreateProject stores a new project record.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: mustPayload(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project record.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %q not found", id)
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: mustPayload(before), After: mustPayload(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project, its criteria, and their evidence rows.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return fmt.Errorf("project %q not found", id)
	}
	for cid, criterion := range tx.state.criteria {
		if criterion.ProjectID != id {
			continue
		}
		tx.dropEvidenceFor(cid)
		delete(tx.state.criteria, cid)
		tx.recordChange(Change{Entity: domain.EntityCriterion, Action: domain.ActionDelete, Before: mustPayload(criterion)})
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: mustPayload(current)})
	return nil
}

func (tx *transaction) dropEvidenceFor(criterionID string) {
	for eid, entry := range tx.state.evidence {
		if entry.CriterionID == criterionID {
			delete(tx.state.evidence, eid)
		}
	}
}

// CreateCriterion stores a new criterion record.
func (tx *transaction) CreateCriterion(c Criterion) (Criterion, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.criteria[c.ID]; exists {
		return Criterion{}, fmt.Errorf("criterion %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	tx.state.criteria[c.ID] = cloneCriterion(c)
	tx.recordChange(Change{Entity: domain.EntityCriterion, Action: domain.ActionCreate, After: mustPayload(c)})
	return cloneCriterion(c), nil
}

// UpdateCriterion mutates a criterion using the provided mutator function.
// ProjectID and TemplateID are restored afterwards; both are immutable.
func (tx *transaction) UpdateCriterion(id string, mutator func(*Criterion) error) (Criterion, error) {
	current, ok := tx.state.criteria[id]
	if !ok {
		return Criterion{}, fmt.Errorf("criterion %q not found", id)
	}
	before := cloneCriterion(current)
	if err := mutator(&current); err != nil {
		return Criterion{}, err
	}
	current.ID = id
	current.ProjectID = before.ProjectID
	current.TemplateID = cloneStringPtr(before.TemplateID)
	current.UpdatedAt = tx.now
	tx.state.criteria[id] = cloneCriterion(current)
	tx.recordChange(Change{Entity: domain.EntityCriterion, Action: domain.ActionUpdate, Before: mustPayload(before), After: mustPayload(current)})
	return cloneCriterion(current), nil
}

// UpdateCriterionStatus writes only the status field of a criterion.
func (tx *transaction) UpdateCriterionStatus(id string, status domain.CriterionStatus) (Criterion, error) {
	current, ok := tx.state.criteria[id]
	if !ok {
		return Criterion{}, fmt.Errorf("criterion %q not found", id)
	}
	before := cloneCriterion(current)
	current.Status = status
	current.UpdatedAt = tx.now
	tx.state.criteria[id] = cloneCriterion(current)
	tx.recordChange(Change{Entity: domain.EntityCriterion, Action: domain.ActionUpdate, Before: mustPayload(before), After: mustPayload(current)})
	return cloneCriterion(current), nil
}

// DeleteCriterion removes a criterion and its evidence rows.
func (tx *transaction) DeleteCriterion(id string) error {
	current, ok := tx.state.criteria[id]
	if !ok {
		return fmt.Errorf("criterion %q not found", id)
	}
	tx.dropEvidenceFor(id)
	delete(tx.state.criteria, id)
	tx.recordChange(Change{Entity: domain.EntityCriterion, Action: domain.ActionDelete, Before: mustPayload(current)})
	return nil
}

// InsertCriteria inserts an allocation batch. All rows commit together or not
// at all; a duplicate ID aborts the whole batch.
func (tx *transaction) InsertCriteria(rows []Criterion) ([]Criterion, error) {
	inserted := make([]Criterion, 0, len(rows))
	for _, row := range rows {
		created, err := tx.CreateCriterion(row)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, created)
	}
	return inserted, nil
}

// DeleteCriteriaByTemplate removes the project's criteria matching the given
// template IDs, with their evidence rows.
func (tx *transaction) DeleteCriteriaByTemplate(projectID string, templateIDs []string) (int, error) {
	wanted := make(map[string]struct{}, len(templateIDs))
	for _, id := range templateIDs {
		wanted[id] = struct{}{}
	}
	removed := 0
	for cid, criterion := range tx.state.criteria {
		if criterion.ProjectID != projectID || criterion.TemplateID == nil {
			continue
		}
		if _, ok := wanted[*criterion.TemplateID]; !ok {
			continue
		}
		tx.dropEvidenceFor(cid)
		delete(tx.state.criteria, cid)
		tx.recordChange(Change{Entity: domain.EntityCriterion, Action: domain.ActionDelete, Before: mustPayload(criterion)})
		removed++
	}
	return removed, nil
}

// CreateEvidence appends an evidence record. Evidence is never updated in
// place, so no update path exists.
func (tx *transaction) CreateEvidence(e Evidence) (Evidence, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.evidence[e.ID]; exists {
		return Evidence{}, fmt.Errorf("evidence %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	if e.RecordedAt.IsZero() {
		e.RecordedAt = tx.now
	}
	tx.state.evidence[e.ID] = cloneEvidence(e)
	tx.recordChange(Change{Entity: domain.EntityEvidence, Action: domain.ActionCreate, After: mustPayload(e)})
	return cloneEvidence(e), nil
}

// DeleteEvidence removes an evidence record.
func (tx *transaction) DeleteEvidence(id string) error {
	current, ok := tx.state.evidence[id]
	if !ok {
		return fmt.Errorf("evidence %q not found", id)
	}
	delete(tx.state.evidence, id)
	tx.recordChange(Change{Entity: domain.EntityEvidence, Action: domain.ActionDelete, Before: mustPayload(current)})
	return nil
}

// CreateTemplate stores a new criteria template.
func (tx *transaction) CreateTemplate(t CriteriaTemplate) (CriteriaTemplate, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.templates[t.ID]; exists {
		return CriteriaTemplate{}, fmt.Errorf("template %q already exists", t.ID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.templates[t.ID] = cloneTemplate(t)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionCreate, After: mustPayload(t)})
	return cloneTemplate(t), nil
}

// UpdateTemplate mutates an existing criteria template.
func (tx *transaction) UpdateTemplate(id string, mutator func(*CriteriaTemplate) error) (CriteriaTemplate, error) {
	current, ok := tx.state.templates[id]
	if !ok {
		return CriteriaTemplate{}, fmt.Errorf("template %q not found", id)
	}
	before := cloneTemplate(current)
	if err := mutator(&current); err != nil {
		return CriteriaTemplate{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.templates[id] = cloneTemplate(current)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionUpdate, Before: mustPayload(before), After: mustPayload(current)})
	return cloneTemplate(current), nil
}

// DeleteTemplate removes a template definition. Criteria allocated from it
// keep their template_id provenance.
func (tx *transaction) DeleteTemplate(id string) error {
	current, ok := tx.state.templates[id]
	if !ok {
		return fmt.Errorf("template %q not found", id)
	}
	delete(tx.state.templates, id)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionDelete, Before: mustPayload(current)})
	return nil
}

// FindCriterion retrieves a criterion from the transactional state.
func (tx *transaction) FindCriterion(id string) (Criterion, bool) {
	c, ok := tx.state.criteria[id]
	if !ok {
		return Criterion{}, false
	}
	return cloneCriterion(c), true
}

// FindProject retrieves a project from the transactional state.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindTemplate retrieves a template from the transactional state.
func (tx *transaction) FindTemplate(id string) (CriteriaTemplate, bool) {
	t, ok := tx.state.templates[id]
	if !ok {
		return CriteriaTemplate{}, false
	}
	return cloneTemplate(t), true
}

// FindEvidence retrieves an evidence record from the transactional state.
func (tx *transaction) FindEvidence(id string) (Evidence, bool) {
	e, ok := tx.state.evidence[id]
	if !ok {
		return Evidence{}, false
	}
	return cloneEvidence(e), true
}

// View methods -----------------------------------------------------------------

// ListCriteria returns the project's criteria ordered by category then title.
func (v view) ListCriteria(projectID string) []Criterion {
	return listCriteria(v.state, projectID)
}

// ListEvidence returns a criterion's evidence most-recent-first.
func (v view) ListEvidence(criterionID string) []Evidence {
	return listEvidence(v.state, criterionID)
}

// ListTemplates returns all templates ordered by category then title.
func (v view) ListTemplates() []CriteriaTemplate {
	return listTemplates(v.state)
}

// FindCriterion retrieves a criterion by ID from the snapshot.
func (v view) FindCriterion(id string) (Criterion, bool) {
	c, ok := v.state.criteria[id]
	if !ok {
		return Criterion{}, false
	}
	return cloneCriterion(c), true
}

// FindEvidence retrieves an evidence record by ID from the snapshot.
func (v view) FindEvidence(id string) (Evidence, bool) {
	e, ok := v.state.evidence[id]
	if !ok {
		return Evidence{}, false
	}
	return cloneEvidence(e), true
}

// FindTemplate retrieves a template by ID from the snapshot.
func (v view) FindTemplate(id string) (CriteriaTemplate, bool) {
	t, ok := v.state.templates[id]
	if !ok {
		return CriteriaTemplate{}, false
	}
	return cloneTemplate(t), true
}

// FindProject retrieves a project by ID from the snapshot.
func (v view) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

func listCriteria(state *memoryState, projectID string) []Criterion {
	out := make([]Criterion, 0)
	for _, c := range state.criteria {
		if c.ProjectID == projectID {
			out = append(out, cloneCriterion(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listEvidence(state *memoryState, criterionID string) []Evidence {
	out := make([]Evidence, 0)
	for _, e := range state.evidence {
		if e.CriterionID == criterionID {
			out = append(out, cloneEvidence(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func listTemplates(state *memoryState) []CriteriaTemplate {
	out := make([]CriteriaTemplate, 0, len(state.templates))
	for _, t := range state.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Read helpers ---------------------------------------------------------------

// GetProject retrieves a project by ID from committed state.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects ordered by title then ID.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetCriterion retrieves a criterion by ID from committed state.
func (s *Store) GetCriterion(id string) (Criterion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.criteria[id]
	if !ok {
		return Criterion{}, false
	}
	return cloneCriterion(c), true
}

// ListCriteria returns the project's criteria ordered by category then title.
func (s *Store) ListCriteria(projectID string) []Criterion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCriteria(&s.state, projectID)
}

// GetEvidence retrieves an evidence record by ID from committed state.
func (s *Store) GetEvidence(id string) (Evidence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.evidence[id]
	if !ok {
		return Evidence{}, false
	}
	return cloneEvidence(e), true
}

// ListEvidence returns a criterion's evidence most-recent-first.
func (s *Store) ListEvidence(criterionID string) []Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEvidence(&s.state, criterionID)
}

// GetTemplate retrieves a template by ID from committed state.
func (s *Store) GetTemplate(id string) (CriteriaTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.templates[id]
	if !ok {
		return CriteriaTemplate{}, false
	}
	return cloneTemplate(t), true
}

// ListTemplates returns all templates ordered by category then title.
func (s *Store) ListTemplates() []CriteriaTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTemplates(&s.state)
}
