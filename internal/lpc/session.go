package lpc

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"deckcore/pkg/domain"
)

// ErrNoInitialPosition is returned when a final position is recorded before
// the initial one.
var ErrNoInitialPosition = errors.New("lpc: initial position not recorded")

// LocationNotFoundError reports a labware location the session does not track.
type LocationNotFoundError struct {
	DefinitionURI string
	Location      domain.LocationSequence
}

func (e *LocationNotFoundError) Error() string {
	if e.Location.Any {
		return fmt.Sprintf("lpc: labware %q not in session", e.DefinitionURI)
	}
	return fmt.Sprintf("lpc: labware %q has no tracked location %v", e.DefinitionURI, e.Location.Components)
}

// SessionLabware declares a labware definition checked by the session and the
// locations the protocol places it at.
type SessionLabware struct {
	DefinitionURI string
	DisplayName   string
	Locations     []domain.LocationSequence
}

// Session is the state of one position check run. It is owned by the caller
// driving the check and is not safe for concurrent use.
type Session struct {
	sequencer     *Sequencer
	labware       LabwareMap
	activePipette string
	hasPipette    bool
	now           func() time.Time
	newID         func() string
	log           Logger
	seqOpts       []SequencerOption
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(log Logger) SessionOption {
	return func(s *Session) { s.log = orNoop(log) }
}

// WithClock sets the time source stamped on pending offsets.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the id source for pending offsets.
func WithIDGenerator(newID func() string) SessionOption {
	return func(s *Session) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithSequencerOptions forwards options to the session's step sequencer.
func WithSequencerOptions(opts ...SequencerOption) SessionOption {
	return func(s *Session) { s.seqOpts = append(s.seqOpts, opts...) }
}

// NewSession builds a session over the protocol's pipettes and labware,
// attaching the newest persisted offset for every tracked location.
func NewSession(pipettes []domain.PipetteEntity, labware []SessionLabware, existing []domain.LabwareOffset, opts ...SessionOption) (*Session, error) {
	s := &Session{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		log:   noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	seq, err := NewSequencer(DefaultSteps, append([]SequencerOption{WithSequencerLogger(s.log)}, s.seqOpts...)...)
	if err != nil {
		return nil, err
	}
	s.sequencer = seq
	s.activePipette, s.hasPipette = SelectActivePipette(pipettes, s.log)

	current := SortUniqueOffsets(existing)
	lookup := func(uri string, loc domain.LocationSequence) *domain.LabwareOffset {
		for _, o := range current {
			if o.DefinitionURI == uri && o.LocationSequence.Equal(loc) {
				found := o.Clone()
				return &found
			}
		}
		return nil
	}

	s.labware = make(LabwareMap, len(labware))
	for _, lw := range labware {
		details, ok := s.labware[lw.DefinitionURI]
		if !ok {
			details = LabwareDetails{
				DefinitionURI: lw.DefinitionURI,
				DisplayName:   lw.DisplayName,
				DefaultOffset: OffsetDetails{
					LocationSequence: domain.AnyLocation,
					ExistingOffset:   lookup(lw.DefinitionURI, domain.AnyLocation),
				},
			}
		}
		for _, loc := range lw.Locations {
			if loc.Any || details.find(loc) != nil {
				continue
			}
			details.LocationSpecificOffsets = append(details.LocationSpecificOffsets, OffsetDetails{
				LocationSequence: loc.Clone(),
				ExistingOffset:   lookup(lw.DefinitionURI, loc),
			})
		}
		s.labware[lw.DefinitionURI] = details
	}
	s.log.Info("position check session started", "labware", len(s.labware), "activePipette", s.activePipette)
	return s, nil
}

// ActivePipette returns the pipette driving the check.
func (s *Session) ActivePipette() (string, bool) {
	return s.activePipette, s.hasPipette
}

// StepInfo returns the workflow position.
func (s *Session) StepInfo() StepInfo {
	return s.sequencer.Info()
}

// Labware returns a copy of the labware map.
func (s *Session) Labware() LabwareMap {
	return s.labware.Clone()
}

func (s *Session) details(uri string, loc domain.LocationSequence) (*OffsetDetails, error) {
	lw, ok := s.labware[uri]
	if !ok {
		return nil, &LocationNotFoundError{DefinitionURI: uri, Location: domain.AnyLocation}
	}
	d := lw.find(loc)
	if d == nil {
		return nil, &LocationNotFoundError{DefinitionURI: uri, Location: loc}
	}
	return d, nil
}

// SetInitialPosition records where the probe sat before jogging. Any earlier
// final position for that location is discarded.
func (s *Session) SetInitialPosition(uri string, loc domain.LocationSequence, pos domain.Vector) error {
	lw, ok := s.labware[uri]
	if !ok {
		return &LocationNotFoundError{DefinitionURI: uri, Location: domain.AnyLocation}
	}
	d := lw.find(loc)
	if d == nil {
		return &LocationNotFoundError{DefinitionURI: uri, Location: loc}
	}
	initial := pos
	d.WorkingOffset = &WorkingOffset{InitialPosition: &initial}
	s.labware[uri] = lw
	return nil
}

// SetFinalPosition records the confirmed position for a location.
func (s *Session) SetFinalPosition(uri string, loc domain.LocationSequence, pos domain.Vector) error {
	lw, ok := s.labware[uri]
	if !ok {
		return &LocationNotFoundError{DefinitionURI: uri, Location: domain.AnyLocation}
	}
	d := lw.find(loc)
	if d == nil {
		return &LocationNotFoundError{DefinitionURI: uri, Location: loc}
	}
	if d.WorkingOffset == nil || d.WorkingOffset.InitialPosition == nil {
		return ErrNoInitialPosition
	}
	final := pos
	d.WorkingOffset.FinalPosition = &final
	s.labware[uri] = lw
	return nil
}

// WorkingOffset returns a copy of the working offset at a location.
func (s *Session) WorkingOffset(uri string, loc domain.LocationSequence) (*WorkingOffset, error) {
	d, err := s.details(uri, loc)
	if err != nil {
		return nil, err
	}
	return d.WorkingOffset.clone(), nil
}

// ClearWorkingOffsets drops every unconfirmed position.
func (s *Session) ClearWorkingOffsets() {
	s.labware = ClearAllWorkingOffsets(s.labware)
}

// Proceed advances to the next workflow step.
func (s *Session) Proceed() error {
	return s.sequencer.Advance()
}

// GoTo jumps to a named workflow step.
func (s *Session) GoTo(step StepName) error {
	return s.sequencer.AdvanceTo(step)
}

// Reset returns to the first step and discards working offsets.
func (s *Session) Reset() {
	s.sequencer.Reset()
	s.ClearWorkingOffsets()
}

// PendingOffsets builds new labware offsets from every location with both
// positions recorded. The vector is the persisted offset (zero when none)
// plus the jog delta. Offsets are ordered by definition URI, default offset
// first, then locations in declaration order.
func (s *Session) PendingOffsets() []domain.LabwareOffset {
	uris := make([]string, 0, len(s.labware))
	for uri := range s.labware {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	created := s.now()
	var out []domain.LabwareOffset
	add := func(uri string, d OffsetDetails) {
		delta, ok := d.WorkingOffset.Delta()
		if !ok {
			return
		}
		var base domain.Vector
		if d.ExistingOffset != nil {
			base = d.ExistingOffset.Vector
		}
		out = append(out, domain.LabwareOffset{
			ID:               s.newID(),
			CreatedAt:        created,
			DefinitionURI:    uri,
			LocationSequence: d.LocationSequence.Clone(),
			Vector:           base.Add(delta),
		})
	}
	for _, uri := range uris {
		lw := s.labware[uri]
		add(uri, lw.DefaultOffset)
		for _, d := range lw.LocationSpecificOffsets {
			add(uri, d)
		}
	}
	return out
}
