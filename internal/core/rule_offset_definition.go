package core

import (
	"context"
	"fmt"
	"strings"

	"deckcore/pkg/domain"
)

// NewOffsetDefinitionURIRule blocks offsets whose definition URI is not of the
// form <namespace>/<loadName>/<version>.
func NewOffsetDefinitionURIRule() domain.Rule {
	return offsetDefinitionURIRule{}
}

type offsetDefinitionURIRule struct{}

func (offsetDefinitionURIRule) Name() string { return "offset_definition_uri" }

func (r offsetDefinitionURIRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, o := range createdOffsets(changes) {
		parts := strings.Split(o.DefinitionURI, "/")
		valid := len(parts) == 3
		for _, p := range parts {
			if p == "" {
				valid = false
			}
		}
		if valid {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("offset %s has invalid definition uri %q", o.ID, o.DefinitionURI),
			Entity:   domain.EntityLabwareOffset,
			EntityID: o.ID,
		})
	}
	return res, nil
}
