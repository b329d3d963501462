package core

import "deckcore/pkg/domain"

type (
	LabwareOffset      = domain.LabwareOffset
	LocationSequence   = domain.LocationSequence
	Vector             = domain.Vector
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	ErrNotFound        = domain.ErrNotFound
)

const (
	EntityLabwareOffset = domain.EntityLabwareOffset
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
)

const (
	ActionCreate = domain.ActionCreate
	ActionDelete = domain.ActionDelete
)
