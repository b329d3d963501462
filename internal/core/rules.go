package core

import "deckcore/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in offset
// policies. warnAboveMM bounds offset vectors; zero or less selects
// DefaultOffsetWarnMM.
func NewDefaultRulesEngine(warnAboveMM float64) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewOffsetDefinitionURIRule())
	engine.Register(NewOffsetLocationSequenceRule())
	engine.Register(NewOffsetVectorBoundsRule(warnAboveMM))
	return engine
}

// createdOffsets yields the offsets created by a transaction.
func createdOffsets(changes []domain.Change) []domain.LabwareOffset {
	var out []domain.LabwareOffset
	for _, c := range changes {
		if c.Entity != domain.EntityLabwareOffset || c.Action != domain.ActionCreate {
			continue
		}
		switch o := c.After.(type) {
		case domain.LabwareOffset:
			out = append(out, o)
		case *domain.LabwareOffset:
			if o != nil {
				out = append(out, *o)
			}
		}
	}
	return out
}
