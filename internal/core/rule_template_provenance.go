package core

import (
	"context"
	"fmt"

	"readycore/pkg/domain"
)

// NewTemplateProvenanceRule blocks a project from holding two criteria
// allocated from the same template. Manually created criteria carry no
// template reference and are never constrained.
func NewTemplateProvenanceRule() domain.Rule {
	return templateProvenanceRule{}
}

type templateProvenanceRule struct{}

func (templateProvenanceRule) Name() string { return "template_provenance" }

func (templateProvenanceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCriterion || change.Action == domain.ActionDelete {
			continue
		}
		criterion, ok := decodeChangePayload[domain.Criterion](change.After)
		if !ok || criterion.TemplateID == nil {
			continue
		}
		for _, existing := range view.ListCriteria(criterion.ProjectID) {
			if existing.ID == criterion.ID || existing.TemplateID == nil {
				continue
			}
			if *existing.TemplateID == *criterion.TemplateID {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "template_provenance",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("project %s already holds criterion %s from template %s", criterion.ProjectID, existing.ID, *criterion.TemplateID),
					Entity:   domain.EntityCriterion,
					EntityID: criterion.ID,
				})
				break
			}
		}
	}
	return res, nil
}
