package core

import (
	"context"
	"fmt"
	"math"

	"deckcore/pkg/domain"
)

// DefaultOffsetWarnMM is the per-axis magnitude above which an offset is
// flagged as suspicious.
const DefaultOffsetWarnMM = 5.0

// NewOffsetVectorBoundsRule warns when any axis of a new offset exceeds
// limitMM in magnitude.
func NewOffsetVectorBoundsRule(limitMM float64) domain.Rule {
	if limitMM <= 0 {
		limitMM = DefaultOffsetWarnMM
	}
	return offsetVectorBoundsRule{limit: limitMM}
}

type offsetVectorBoundsRule struct {
	limit float64
}

func (offsetVectorBoundsRule) Name() string { return "offset_vector_bounds" }

func (r offsetVectorBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, o := range createdOffsets(changes) {
		v := o.Vector
		if math.Abs(v.X) <= r.limit && math.Abs(v.Y) <= r.limit && math.Abs(v.Z) <= r.limit {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("offset %s vector (%.2f, %.2f, %.2f) exceeds %.2f mm", o.ID, v.X, v.Y, v.Z, r.limit),
			Entity:   domain.EntityLabwareOffset,
			EntityID: o.ID,
		})
	}
	return res, nil
}
