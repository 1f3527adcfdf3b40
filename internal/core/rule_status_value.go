package core

import (
	"context"
	"fmt"

	"readycore/pkg/domain"
)

// NewStatusValueRule blocks criterion writes carrying a status outside the
// recognized set. Any transition between recognized statuses is allowed.
func NewStatusValueRule() domain.Rule {
	return statusValueRule{}
}

type statusValueRule struct{}

func (statusValueRule) Name() string { return "status_value" }

func (statusValueRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCriterion || change.Action == domain.ActionDelete {
			continue
		}
		criterion, ok := decodeChangePayload[domain.Criterion](change.After)
		if !ok {
			continue
		}
		if !criterion.Status.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_value",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("criterion %s is set to unrecognized status %q", criterion.ID, criterion.Status),
				Entity:   domain.EntityCriterion,
				EntityID: criterion.ID,
			})
		}
	}
	return res, nil
}
