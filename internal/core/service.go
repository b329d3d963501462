package core

import (
	"context"
	"strings"
	"time"

	"deckcore/internal/lpc"
	"deckcore/internal/protocol"
	"deckcore/internal/stepgen"
	"deckcore/pkg/domain"
)

const (
	opCreateOffsets      = "create_offsets"
	opListOffsets        = "list_offsets"
	opCurrentOffsets     = "current_offsets"
	opGetOffset          = "get_offset"
	opDeleteOffset       = "delete_offset"
	opSimulate           = "simulate"
	opStartPositionCheck = "start_position_check"
)

type auditMeta struct {
	entity EntityType
	action Action
}

// Only mutating operations are audited.
var auditedOperations = map[string]auditMeta{
	opCreateOffsets: {entity: EntityLabwareOffset, action: ActionCreate},
	opDeleteOffset:  {entity: EntityLabwareOffset, action: ActionDelete},
}

// SimulationObserver receives every timeline produced by Simulate.
type SimulationObserver interface {
	ObserveTimeline(ctx context.Context, timeline stepgen.Timeline)
}

// Service exposes offset persistence and protocol simulation.
type Service struct {
	store   PersistentStore
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	sims    []SimulationObserver
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used to stamp new offsets.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink. Recorders that also
// implement SimulationObserver receive simulation timelines.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m == nil {
			return
		}
		s.metrics = m
		if obs, ok := m.(SimulationObserver); ok {
			s.sims = append(s.sims, obs)
		}
	}
}

// WithSimulationObserver adds a timeline observer.
func WithSimulationObserver(o SimulationObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.sims = append(s.sims, o)
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over an in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, err := fn(ctx)
	elapsed := time.Since(started)

	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	s.recordAudit(ctx, op, entityID, elapsed, err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, elapsed time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) logWarnings(res Result) {
	for _, v := range res.Violations {
		if v.Severity != SeverityWarn {
			continue
		}
		s.logger.Warn("rule warning", "rule", v.Rule, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
	}
}

// CreateOffsets persists offsets in one transaction. Offsets without a
// timestamp are stamped with the service clock and offsets without an id get
// a fresh one. Nothing is persisted when any offset fails or a rule blocks.
func (s *Service) CreateOffsets(ctx context.Context, offsets []LabwareOffset) ([]LabwareOffset, Result, error) {
	var (
		created []LabwareOffset
		res     Result
	)
	err := s.run(ctx, opCreateOffsets, func(ctx context.Context) (string, error) {
		now := s.clock.Now()
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			created = created[:0]
			for _, o := range offsets {
				if o.CreatedAt.IsZero() {
					o.CreatedAt = now
				}
				c, err := tx.CreateOffset(o)
				if err != nil {
					return err
				}
				created = append(created, c)
			}
			return nil
		})
		if err != nil {
			created = nil
			return "", err
		}
		ids := make([]string, 0, len(created))
		for _, c := range created {
			ids = append(ids, c.ID)
		}
		return strings.Join(ids, ","), nil
	})
	s.logWarnings(res)
	return created, res, err
}

// ListOffsets returns every stored offset ordered by creation.
func (s *Service) ListOffsets(ctx context.Context) ([]LabwareOffset, error) {
	var out []LabwareOffset
	err := s.run(ctx, opListOffsets, func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(v TransactionView) error {
			out = v.ListOffsets()
			return nil
		})
	})
	return out, err
}

// CurrentOffsets returns the newest offset per definition and location,
// newest first. A non-empty uri restricts the result to that definition.
func (s *Service) CurrentOffsets(ctx context.Context, uri string) ([]LabwareOffset, error) {
	var out []LabwareOffset
	err := s.run(ctx, opCurrentOffsets, func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, func(v TransactionView) error {
			out = lpc.FilterByDefinition(lpc.SortUniqueOffsets(v.ListOffsets()), uri)
			return nil
		})
	})
	return out, err
}

// GetOffset returns one offset by id.
func (s *Service) GetOffset(ctx context.Context, id string) (LabwareOffset, error) {
	var out LabwareOffset
	err := s.run(ctx, opGetOffset, func(ctx context.Context) (string, error) {
		return id, s.store.View(ctx, func(v TransactionView) error {
			o, ok := v.FindOffset(id)
			if !ok {
				return ErrNotFound{Entity: EntityLabwareOffset, ID: id}
			}
			out = o
			return nil
		})
	})
	return out, err
}

// DeleteOffset removes an offset record.
func (s *Service) DeleteOffset(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, opDeleteOffset, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteOffset(id)
		})
		return id, err
	})
	s.logWarnings(res)
	return res, err
}

// Simulate folds the protocol's steps over its initial state. A failing step
// is reported through Timeline.Error; the returned error is reserved for
// contract violations.
func (s *Service) Simulate(ctx context.Context, p protocol.Protocol) (stepgen.Timeline, error) {
	var tl stepgen.Timeline
	err := s.run(ctx, opSimulate, func(ctx context.Context) (string, error) {
		var err error
		tl, err = stepgen.CommandsAndRobotStateTimeline(p.Steps, p.Invariant, p.Initial)
		if err != nil {
			return p.Name, err
		}
		for _, obs := range s.sims {
			obs.ObserveTimeline(ctx, tl)
		}
		if tl.Error != nil {
			s.logger.Warn("protocol step failed", "protocol", p.Name, "step", tl.Error.StepIndex+1, "type", tl.Error.StepType, "error", tl.Error.Error())
		} else {
			s.logger.Info("protocol simulated", "protocol", p.Name, "steps", len(tl.Frames), "commands", len(tl.Commands()))
		}
		return p.Name, nil
	})
	return tl, err
}

// StartPositionCheck opens a labware position check for the protocol, seeded
// with the stored offsets. Off-deck labware is not checked.
func (s *Service) StartPositionCheck(ctx context.Context, p protocol.Protocol, opts ...lpc.SessionOption) (*lpc.Session, error) {
	var sess *lpc.Session
	err := s.run(ctx, opStartPositionCheck, func(ctx context.Context) (string, error) {
		var existing []LabwareOffset
		if err := s.store.View(ctx, func(v TransactionView) error {
			existing = v.ListOffsets()
			return nil
		}); err != nil {
			return "", err
		}
		pipettes := p.Invariant.Pipettes()
		base := []lpc.SessionOption{lpc.WithLogger(s.logger), lpc.WithClock(s.clock.Now)}
		var err error
		sess, err = lpc.NewSession(pipettes, sessionLabware(p), existing, append(base, opts...)...)
		return p.Name, err
	})
	return sess, err
}

// SavePositionCheck persists the offsets confirmed in a session.
func (s *Service) SavePositionCheck(ctx context.Context, sess *lpc.Session) ([]LabwareOffset, Result, error) {
	pending := sess.PendingOffsets()
	if len(pending) == 0 {
		return nil, Result{}, nil
	}
	return s.CreateOffsets(ctx, pending)
}

func sessionLabware(p protocol.Protocol) []lpc.SessionLabware {
	var out []lpc.SessionLabware
	index := make(map[string]int)
	for _, id := range p.Invariant.LabwareIDs() {
		lw, _ := p.Invariant.Labware(id)
		loc, ok := LocationSequenceOf(p, id)
		if !ok {
			continue
		}
		i, seen := index[lw.DefinitionURI]
		if !seen {
			index[lw.DefinitionURI] = len(out)
			out = append(out, lpc.SessionLabware{DefinitionURI: lw.DefinitionURI, DisplayName: lw.Definition.DisplayName})
			i = len(out) - 1
		}
		out[i].Locations = append(out[i].Locations, loc)
	}
	return out
}

// LocationSequenceOf resolves the stacking sequence of a labware from its
// initial placement, from the labware itself down to the deck slot. It
// reports false for off-deck labware and placement cycles.
func LocationSequenceOf(p protocol.Protocol, labwareID string) (LocationSequence, bool) {
	var comps []domain.LocationComponent
	visited := make(map[string]bool)
	id := labwareID
	for {
		placed, ok := p.Initial.Labware[id]
		if !ok || placed.Slot == "" || placed.Slot == domain.OffDeck || visited[id] {
			return LocationSequence{}, false
		}
		visited[id] = true
		slot := placed.Slot
		if m, ok := p.Invariant.Module(slot); ok {
			comps = append(comps, domain.LocationComponent{Kind: domain.LocationOnModule, ModuleModel: m.Model})
			modSlot := p.Initial.Modules[slot].Slot
			if modSlot == "" {
				return LocationSequence{}, false
			}
			comps = append(comps, domain.LocationComponent{Kind: domain.LocationOnAddressableArea, AddressableAreaName: modSlot})
			return domain.Sequence(comps...), true
		}
		if parent, ok := p.Invariant.Labware(slot); ok {
			comps = append(comps, domain.LocationComponent{Kind: domain.LocationOnLabware, LabwareURI: parent.DefinitionURI})
			id = slot
			continue
		}
		comps = append(comps, domain.LocationComponent{Kind: domain.LocationOnAddressableArea, AddressableAreaName: slot})
		return domain.Sequence(comps...), true
	}
}
