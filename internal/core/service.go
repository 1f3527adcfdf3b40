package core

import (
	"context"
	"strings"
	"time"

	"readycore/internal/blob"
	"readycore/internal/infra/persistence/memory"
)

// Service exposes the transactional operations of the readiness schema:
// project and criterion CRUD, the status state machine, the evidence audit
// trail, and template allocation.
type Service struct {
	store   PersistentStore
	blobs   blob.Store
	metrics MetricsRecorder
	nowFn   func() time.Time
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithBlobStore wires the object store used for file evidence.
func WithBlobStore(bs blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = bs }
}

// WithMetricsRecorder wires the recorder observing each service operation.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) ServiceOption {
	return func(s *Service) { s.nowFn = fn }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		metrics: NoopMetricsRecorder{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.blobs == nil {
		s.blobs = blob.NewMemory()
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Blobs returns the configured object store.
func (s *Service) Blobs() blob.Store {
	return s.blobs
}

func (s *Service) observe(ctx context.Context, operation string, started time.Time, err error) {
	s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
}

// runTx executes fn in a store transaction. Domain errors raised inside the
// transaction surface untouched; any other failure is a store fault and is
// wrapped in PersistenceError so callers can discriminate it by type.
func (s *Service) runTx(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	res, err := s.store.RunInTransaction(ctx, fn)
	if err != nil && !isDomainError(err) {
		return res, PersistenceError{Op: op, Err: err}
	}
	return res, err
}

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	started := time.Now()
	var created Project
	res, err := s.runTx(ctx, "create_project", func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		return err
	})
	s.observe(ctx, "create_project", started, err)
	return created, res, err
}

// UpdateProject mutates a project using the provided mutator.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project) error) (Project, Result, error) {
	started := time.Now()
	var updated Project
	res, err := s.runTx(ctx, "update_project", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProject(id, mutator)
		return err
	})
	s.observe(ctx, "update_project", started, err)
	return updated, res, err
}

// DeleteProject removes a project together with its criteria and evidence.
func (s *Service) DeleteProject(ctx context.Context, id string) (Result, error) {
	started := time.Now()
	res, err := s.runTx(ctx, "delete_project", func(tx Transaction) error {
		return tx.DeleteProject(id)
	})
	s.observe(ctx, "delete_project", started, err)
	return res, err
}

// CreateCriterion persists a manually created criterion. The status defaults
// to not_started when unset.
func (s *Service) CreateCriterion(ctx context.Context, criterion Criterion) (Criterion, Result, error) {
	started := time.Now()
	if strings.TrimSpace(criterion.Title) == "" {
		err := ValidationError{Field: "title", Reason: "required"}
		s.observe(ctx, "create_criterion", started, err)
		return Criterion{}, Result{}, err
	}
	if criterion.Status == "" {
		criterion.Status = StatusNotStarted
	}
	var created Criterion
	res, err := s.runTx(ctx, "create_criterion", func(tx Transaction) error {
		if _, ok := tx.FindProject(criterion.ProjectID); !ok {
			return ErrNotFound{Entity: EntityProject, ID: criterion.ProjectID}
		}
		var err error
		created, err = tx.CreateCriterion(criterion)
		return err
	})
	s.observe(ctx, "create_criterion", started, err)
	return created, res, err
}

// UpdateCriterion mutates a criterion using the provided mutator. Identity
// fields and the template reference stay immutable regardless of the mutator.
func (s *Service) UpdateCriterion(ctx context.Context, id string, mutator func(*Criterion) error) (Criterion, Result, error) {
	started := time.Now()
	var updated Criterion
	res, err := s.runTx(ctx, "update_criterion", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCriterion(id, mutator)
		return err
	})
	s.observe(ctx, "update_criterion", started, err)
	return updated, res, err
}

// DeleteCriterion removes a criterion and its evidence rows.
func (s *Service) DeleteCriterion(ctx context.Context, id string) (Result, error) {
	started := time.Now()
	res, err := s.runTx(ctx, "delete_criterion", func(tx Transaction) error {
		return tx.DeleteCriterion(id)
	})
	s.observe(ctx, "delete_criterion", started, err)
	return res, err
}

// CreateTemplate persists a template definition.
func (s *Service) CreateTemplate(ctx context.Context, template CriteriaTemplate) (CriteriaTemplate, Result, error) {
	started := time.Now()
	if strings.TrimSpace(template.Title) == "" {
		err := ValidationError{Field: "title", Reason: "required"}
		s.observe(ctx, "create_template", started, err)
		return CriteriaTemplate{}, Result{}, err
	}
	if template.DefaultStatus == "" {
		template.DefaultStatus = StatusNotStarted
	}
	var created CriteriaTemplate
	res, err := s.runTx(ctx, "create_template", func(tx Transaction) error {
		var err error
		created, err = tx.CreateTemplate(template)
		return err
	})
	s.observe(ctx, "create_template", started, err)
	return created, res, err
}

// UpdateTemplate mutates a template definition.
func (s *Service) UpdateTemplate(ctx context.Context, id string, mutator func(*CriteriaTemplate) error) (CriteriaTemplate, Result, error) {
	started := time.Now()
	var updated CriteriaTemplate
	res, err := s.runTx(ctx, "update_template", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateTemplate(id, mutator)
		return err
	})
	s.observe(ctx, "update_template", started, err)
	return updated, res, err
}

// DeleteTemplate removes a template definition. Criteria already allocated
// from it keep their template reference.
func (s *Service) DeleteTemplate(ctx context.Context, id string) (Result, error) {
	started := time.Now()
	res, err := s.runTx(ctx, "delete_template", func(tx Transaction) error {
		return tx.DeleteTemplate(id)
	})
	s.observe(ctx, "delete_template", started, err)
	return res, err
}

// Criteria returns the project's criteria ordered by category then title.
func (s *Service) Criteria(projectID string) []Criterion {
	return s.store.ListCriteria(projectID)
}

// EvidenceTrail returns a criterion's evidence most-recent-first.
func (s *Service) EvidenceTrail(criterionID string) []Evidence {
	return s.store.ListEvidence(criterionID)
}

// Templates returns every template definition ordered by category then title.
func (s *Service) Templates() []CriteriaTemplate {
	return s.store.ListTemplates()
}
