package stepgen

import (
	"errors"
	"fmt"
	"strings"

	"deckcore/pkg/domain"
)

// Frame records what one step emitted and the state after it ran.
type Frame struct {
	StepType   string                          `json:"stepType"`
	Commands   []domain.Command                `json:"-"`
	Warnings   []domain.CommandCreationWarning `json:"warnings,omitempty"`
	RobotState domain.RobotState               `json:"-"`
}

// Timeline is the result of folding a protocol's steps over an initial state.
// Frames hold only the steps that succeeded; Error is set when a step failed.
type Timeline struct {
	Frames []Frame
	Error  *StepError
}

// Commands flattens the commands of every frame in order.
func (t Timeline) Commands() []domain.Command {
	var out []domain.Command
	for _, f := range t.Frames {
		out = append(out, f.Commands...)
	}
	return out
}

// FinalState is the state after the last successful frame, or initial when
// no frame ran.
func (t Timeline) FinalState(initial domain.RobotState) domain.RobotState {
	if len(t.Frames) == 0 {
		return initial
	}
	return t.Frames[len(t.Frames)-1].RobotState
}

// StepError tags creation errors with the zero-based index of the failing step.
type StepError struct {
	StepIndex int
	StepType  string
	Errors    []domain.CommandCreationError
	Warnings  []domain.CommandCreationWarning
}

func (e *StepError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ce := range e.Errors {
		msgs = append(msgs, ce.Error())
	}
	return fmt.Sprintf("step %d (%s): %s", e.StepIndex+1, e.StepType, strings.Join(msgs, "; "))
}

// CommandsAndRobotStateTimeline runs steps in order, threading the robot state
// from one step to the next. It stops at the first step that reports creation
// errors; that step and every later step contribute no commands. A non-nil
// error is returned only for contract violations.
func CommandsAndRobotStateTimeline(steps []Step, inv *domain.InvariantContext, initial domain.RobotState) (timeline Timeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			var cv *ContractViolationError
			if e, ok := r.(error); ok && errors.As(e, &cv) {
				timeline, err = Timeline{}, cv
				return
			}
			panic(r)
		}
	}()

	current := initial
	for i, step := range steps {
		if step == nil {
			return Timeline{}, &ContractViolationError{Reason: fmt.Sprintf("nil step at index %d", i)}
		}
		res := step.Create(inv, current)
		if res.Failed() {
			timeline.Error = &StepError{StepIndex: i, StepType: step.StepType(), Errors: res.Errors, Warnings: res.Warnings}
			return timeline, nil
		}
		keyed := make([]domain.Command, len(res.Commands))
		for n, cmd := range res.Commands {
			if cmd == nil {
				return Timeline{}, &ContractViolationError{Reason: fmt.Sprintf("step %d emitted a nil command", i)}
			}
			if cmd.CommandKey() == "" {
				cmd = domain.WithKey(cmd, fmt.Sprintf("%d-%d", i, n))
			}
			keyed[n] = cmd
		}
		next, err := AdvanceAll(keyed, inv, current)
		if err != nil {
			return Timeline{}, err
		}
		timeline.Frames = append(timeline.Frames, Frame{
			StepType:   step.StepType(),
			Commands:   keyed,
			Warnings:   res.Warnings,
			RobotState: next,
		})
		current = next
	}
	return timeline, nil
}
