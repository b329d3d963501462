package lpc

import (
	"errors"
	"fmt"
)

// StepName names one stage of the position check workflow.
type StepName string

// Position check stages, in workflow order.
const (
	StepBeforeBeginning StepName = "BEFORE_BEGINNING"
	StepAttachProbe     StepName = "ATTACH_PROBE"
	StepHandleLabware   StepName = "HANDLE_LABWARE"
	StepDetachProbe     StepName = "DETACH_PROBE"
	StepComplete        StepName = "LPC_COMPLETE"
)

// DefaultSteps is the fixed position check workflow.
var DefaultSteps = []StepName{
	StepBeforeBeginning,
	StepAttachProbe,
	StepHandleLabware,
	StepDetachProbe,
	StepComplete,
}

// BoundaryPolicy decides what Advance does on the last step.
type BoundaryPolicy int

const (
	// BoundaryClamp leaves the index on the last step.
	BoundaryClamp BoundaryPolicy = iota
	// BoundarySignal returns ErrBoundaryReached.
	BoundarySignal
)

// UnknownStepPolicy decides what AdvanceTo does with a name outside the
// workflow.
type UnknownStepPolicy int

const (
	// UnknownStepReset logs an error and returns to the first step.
	UnknownStepReset UnknownStepPolicy = iota
	// UnknownStepReject returns a *StepNotFoundError and keeps the index.
	UnknownStepReject
)

// ErrBoundaryReached is returned by Advance on the last step under BoundarySignal.
var ErrBoundaryReached = errors.New("lpc: already at last step")

// StepNotFoundError reports a step name outside the workflow.
type StepNotFoundError struct {
	Name StepName
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("lpc: unknown step %q", e.Name)
}

// StepInfo is a snapshot of the sequencer position.
type StepInfo struct {
	CurrentStepIndex int
	TotalStepCount   int
	All              []StepName
}

// Current returns the name of the current step.
func (i StepInfo) Current() StepName {
	return i.All[i.CurrentStepIndex]
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithBoundaryPolicy sets the behaviour of Advance on the last step.
func WithBoundaryPolicy(p BoundaryPolicy) SequencerOption {
	return func(s *Sequencer) { s.boundary = p }
}

// WithUnknownStepPolicy sets the behaviour of AdvanceTo for unknown names.
func WithUnknownStepPolicy(p UnknownStepPolicy) SequencerOption {
	return func(s *Sequencer) { s.unknown = p }
}

// WithSequencerLogger routes sequencer diagnostics to log.
func WithSequencerLogger(log Logger) SequencerOption {
	return func(s *Sequencer) { s.log = orNoop(log) }
}

// Sequencer is a finite index machine over a fixed list of steps. The index
// always satisfies 0 <= index < len(steps).
type Sequencer struct {
	steps    []StepName
	index    int
	boundary BoundaryPolicy
	unknown  UnknownStepPolicy
	log      Logger
}

// NewSequencer starts a sequencer at the first of steps.
func NewSequencer(steps []StepName, opts ...SequencerOption) (*Sequencer, error) {
	if len(steps) == 0 {
		return nil, errors.New("lpc: sequencer needs at least one step")
	}
	s := &Sequencer{
		steps: append([]StepName(nil), steps...),
		log:   noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Info returns the current position.
func (s *Sequencer) Info() StepInfo {
	return StepInfo{
		CurrentStepIndex: s.index,
		TotalStepCount:   len(s.steps),
		All:              append([]StepName(nil), s.steps...),
	}
}

// Advance moves to the next step.
func (s *Sequencer) Advance() error {
	if s.index >= len(s.steps)-1 {
		if s.boundary == BoundarySignal {
			return ErrBoundaryReached
		}
		return nil
	}
	s.index++
	return nil
}

// AdvanceTo jumps to the named step.
func (s *Sequencer) AdvanceTo(name StepName) error {
	for i, step := range s.steps {
		if step == name {
			s.index = i
			return nil
		}
	}
	if s.unknown == UnknownStepReject {
		return &StepNotFoundError{Name: name}
	}
	s.log.Error("unknown position check step; returning to first step", "step", string(name))
	s.index = 0
	return nil
}

// Reset returns to the first step.
func (s *Sequencer) Reset() {
	s.index = 0
}
