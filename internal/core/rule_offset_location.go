package core

import (
	"context"
	"fmt"

	"deckcore/pkg/domain"
)

// NewOffsetLocationSequenceRule blocks offsets with a concrete location
// sequence that has no components, or whose last component is not a deck
// addressable area.
func NewOffsetLocationSequenceRule() domain.Rule {
	return offsetLocationSequenceRule{}
}

type offsetLocationSequenceRule struct{}

func (offsetLocationSequenceRule) Name() string { return "offset_location_sequence" }

func (r offsetLocationSequenceRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, o := range createdOffsets(changes) {
		seq := o.LocationSequence
		if seq.Any {
			continue
		}
		var msg string
		switch {
		case len(seq.Components) == 0:
			msg = fmt.Sprintf("offset %s has an empty location sequence", o.ID)
		case seq.Components[len(seq.Components)-1].Kind != domain.LocationOnAddressableArea:
			msg = fmt.Sprintf("offset %s location sequence does not end on the deck", o.ID)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityLabwareOffset,
			EntityID: o.ID,
		})
	}
	return res, nil
}
