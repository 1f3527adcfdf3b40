package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	// DeleteProject removes a project together with its criteria and their
	// evidence rows.
	DeleteProject(id string) error
	CreateCriterion(Criterion) (Criterion, error)
	UpdateCriterion(id string, mutator func(*Criterion) error) (Criterion, error)
	// UpdateCriterionStatus is the dedicated status-only write path. It never
	// touches any other criterion field, so a concurrent edit of other fields
	// cannot be clobbered by a stale full-row write.
	UpdateCriterionStatus(id string, status CriterionStatus) (Criterion, error)
	// DeleteCriterion removes a criterion and its evidence rows.
	DeleteCriterion(id string) error
	// InsertCriteria atomically inserts a reviewed allocation batch.
	InsertCriteria(rows []Criterion) ([]Criterion, error)
	// DeleteCriteriaByTemplate removes the project's criteria whose
	// template_id is in templateIDs, together with their evidence rows. It
	// returns the number of criteria removed.
	DeleteCriteriaByTemplate(projectID string, templateIDs []string) (int, error)
	CreateEvidence(Evidence) (Evidence, error)
	DeleteEvidence(id string) error
	CreateTemplate(CriteriaTemplate) (CriteriaTemplate, error)
	UpdateTemplate(id string, mutator func(*CriteriaTemplate) error) (CriteriaTemplate, error)
	DeleteTemplate(id string) error
	FindCriterion(id string) (Criterion, bool)
	FindProject(id string) (Project, bool)
	FindTemplate(id string) (CriteriaTemplate, bool)
	FindEvidence(id string) (Evidence, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetCriterion(id string) (Criterion, bool)
	// ListCriteria returns the project's criteria ordered by category then
	// title.
	ListCriteria(projectID string) []Criterion
	GetEvidence(id string) (Evidence, bool)
	// ListEvidence returns a criterion's evidence most-recent-first.
	ListEvidence(criterionID string) []Evidence
	GetTemplate(id string) (CriteriaTemplate, bool)
	ListTemplates() []CriteriaTemplate
}
