// Package stepgen turns protocol steps into robot commands and simulates the
// effect of those commands on a RobotState.
//
// Every creator is a pure function of (args, invariant context, robot state).
// Compound creators are built by currying atomic ones and folding them with
// ReduceCommandCreators, which advances the state between sub-creators.
package stepgen

import (
	"deckcore/pkg/domain"
)

// CommandCreator maps step arguments to commands given the current state.
type CommandCreator[A any] func(args A, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult

// CurriedCommandCreator is a CommandCreator with its arguments bound.
type CurriedCommandCreator func(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult

// Curry binds args to a creator.
func Curry[A any](creator CommandCreator[A], args A) CurriedCommandCreator {
	return func(inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
		return creator(args, inv, state)
	}
}

// ReduceCommandCreators runs creators in order, advancing the state after
// each one, and concatenates their commands. The first failing creator stops
// the reduction and its errors are returned with all warnings collected so
// far.
func ReduceCommandCreators(creators []CurriedCommandCreator, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	var (
		commands []domain.Command
		warnings []domain.CommandCreationWarning
	)
	current := state
	for _, creator := range creators {
		res := creator(inv, current)
		warnings = append(warnings, res.Warnings...)
		if res.Failed() {
			return domain.CommandCreationResult{Errors: res.Errors, Warnings: warnings}
		}
		current = mustAdvanceAll(res.Commands, inv, current)
		commands = append(commands, res.Commands...)
	}
	return domain.CommandCreationResult{Commands: commands, Warnings: warnings}
}

// mustAdvanceAll panics with a *ContractViolationError when a nested creator
// emits a command the simulator cannot handle. The timeline fold recovers it
// and returns it as an error.
func mustAdvanceAll(cmds []domain.Command, inv *domain.InvariantContext, state domain.RobotState) domain.RobotState {
	next, err := AdvanceAll(cmds, inv, state)
	if err != nil {
		panic(err)
	}
	return next
}
