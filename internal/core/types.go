package core

import "readycore/pkg/domain"

type (
	EntityType         = domain.EntityType
	CriterionStatus    = domain.CriterionStatus
	EvidenceKind       = domain.EvidenceKind
	Severity           = domain.Severity
	Base               = domain.Base
	Criterion          = domain.Criterion
	Evidence           = domain.Evidence
	CriteriaTemplate   = domain.CriteriaTemplate
	Project            = domain.Project
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityCriterion = domain.EntityCriterion
	EntityEvidence  = domain.EntityEvidence
	EntityTemplate  = domain.EntityTemplate
	EntityProject   = domain.EntityProject
)

const (
	StatusNotStarted = domain.StatusNotStarted
	StatusInProgress = domain.StatusInProgress
	StatusDone       = domain.StatusDone
	StatusDelayed    = domain.StatusDelayed
	StatusCaveat     = domain.StatusCaveat
)

const (
	EvidenceNote = domain.EvidenceNote
	EvidenceLink = domain.EvidenceLink
	EvidenceFile = domain.EvidenceFile
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
