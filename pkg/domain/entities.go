// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by readycore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCriterion identifies an acceptance criterion record.
	EntityCriterion EntityType = "criterion"
	// EntityEvidence identifies an evidence/audit record.
	EntityEvidence EntityType = "evidence"
	// EntityTemplate identifies a criteria template record.
	EntityTemplate EntityType = "criteria_template"
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
)

// CriterionStatus represents the canonical readiness states of a criterion.
// The status graph is free: any status may transition to any other and no
// status is terminal.
type CriterionStatus string

// Canonical criterion statuses.
const (
	StatusNotStarted CriterionStatus = "not_started"
	StatusInProgress CriterionStatus = "in_progress"
	StatusDone       CriterionStatus = "done"
	StatusDelayed    CriterionStatus = "delayed"
	StatusCaveat     CriterionStatus = "caveat"
)

var statusLabels = map[CriterionStatus]string{
	StatusNotStarted: "Not started",
	StatusInProgress: "In progress",
	StatusDone:       "Done",
	StatusDelayed:    "Delayed",
	StatusCaveat:     "Caveat",
}

// KnownStatuses returns the recognized statuses in display order.
func KnownStatuses() []CriterionStatus {
	return []CriterionStatus{StatusNotStarted, StatusInProgress, StatusDone, StatusDelayed, StatusCaveat}
}

// Valid reports whether the status is one of the five recognized values.
func (s CriterionStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human-readable label used in audit notes.
func (s CriterionStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus resolves a raw string to a recognized status.
func ParseStatus(raw string) (CriterionStatus, bool) {
	s := CriterionStatus(strings.TrimSpace(raw))
	return s, s.Valid()
}

// EvidenceKind discriminates the three evidence attachment shapes.
type EvidenceKind string

// Evidence kinds. Note entries are permanent; link and file entries may be removed.
const (
	EvidenceNote EvidenceKind = "note"
	EvidenceLink EvidenceKind = "link"
	EvidenceFile EvidenceKind = "file"
)

// Valid reports whether the kind is recognized.
func (k EvidenceKind) Valid() bool {
	switch k {
	case EvidenceNote, EvidenceLink, EvidenceFile:
		return true
	}
	return false
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Criterion represents a single trackable acceptance item within a project.
type Criterion struct {
	Base
	ProjectID string `json:"project_id"`
	// TemplateID traces a criterion back to the template that allocated it.
	// Nil for manually created criteria. Immutable once set; it is the sole
	// key used for allocation diffing.
	TemplateID       *string         `json:"template_id"`
	Title            string          `json:"title"`
	Category         string          `json:"category,omitempty"`
	Severity         string          `json:"severity,omitempty"`
	Status           CriterionStatus `json:"status"`
	Owner            *string         `json:"owner,omitempty"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	CaveatReason     *string         `json:"caveat_reason,omitempty"`
	EvidenceRequired bool            `json:"evidence_required"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// Evidence is an append-only record attached to a criterion: a note, a link,
// or a file. Entries are never updated in place. Note entries are permanent.
type Evidence struct {
	Base
	CriterionID string       `json:"criterion_id"`
	Kind        EvidenceKind `json:"kind"`
	Narrative   string       `json:"narrative"`
	URL         *string      `json:"url,omitempty"`
	FilePath    *string      `json:"file_path,omitempty"`
	FileMime    *string      `json:"file_mime,omitempty"`
	FileSize    *int64       `json:"file_size,omitempty"`
	FileURL     *string      `json:"file_url,omitempty"`
	Author      string       `json:"author"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// CriteriaTemplate is a reusable criterion definition, optionally scoped to
// an organisation (nil OrgID = global). Templates are read-only from the
// allocator's point of view; only active templates are eligible for
// allocation.
type CriteriaTemplate struct {
	Base
	OrgID            *string         `json:"org_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Category         string          `json:"category,omitempty"`
	Severity         string          `json:"severity,omitempty"`
	DefaultStatus    CriterionStatus `json:"default_status"`
	EvidenceRequired bool            `json:"evidence_required"`
	Version          int             `json:"version"`
	Active           bool            `json:"is_active"`
	DueOffsetDays    *int            `json:"default_due_offset_days"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// Project anchors criteria and provides the reference dates consumed by
// due-date computation.
type Project struct {
	Base
	OrgID      string     `json:"org_id"`
	Code       string     `json:"code,omitempty"`
	Title      string     `json:"title"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	GoLiveDate *time.Time `json:"go_live_date,omitempty"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn flags a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
// Before and After hold JSON snapshots of the entity state.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the change journal.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
