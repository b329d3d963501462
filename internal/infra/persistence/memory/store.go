// Package memory provides an in-memory implementation of the offset store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deckcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

type (
	// LabwareOffset aliases domain.LabwareOffset.
	LabwareOffset = domain.LabwareOffset
	// Result aliases domain.Result.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
)

// Snapshot is the serialisable form of the store state.
type Snapshot struct {
	Offsets map[string]LabwareOffset `json:"offsets"`
}

// offsetTable is keyed by offset id; values are never shared with callers.
type offsetTable map[string]LabwareOffset

func (t offsetTable) clone() offsetTable {
	out := make(offsetTable, len(t))
	for id, o := range t {
		out[id] = o.Clone()
	}
	return out
}

func (t offsetTable) find(id string) (LabwareOffset, bool) {
	o, ok := t[id]
	if !ok {
		return LabwareOffset{}, false
	}
	return o.Clone(), true
}

// sorted orders by creation time, then id.
func (t offsetTable) sorted() []LabwareOffset {
	out := make([]LabwareOffset, 0, len(t))
	for _, o := range t {
		out = append(out, o.Clone())
	}
	slices.SortFunc(out, func(a, b LabwareOffset) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// ListOffsets implements domain.RuleView.
func (t offsetTable) ListOffsets() []LabwareOffset { return t.sorted() }

// FindOffset implements domain.RuleView.
func (t offsetTable) FindOffset(id string) (LabwareOffset, bool) { return t.find(id) }

// Store keeps offsets in memory and commits a transaction only when its
// callback succeeds and no rule blocks.
type Store struct {
	mu      sync.RWMutex
	offsets offsetTable
	engine  *RulesEngine
	nowFn   func() time.Time
}

// NewStore returns an empty store evaluating engine on every transaction.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		offsets: make(offsetTable),
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp offsets created without a
// timestamp.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// NowFunc returns the stamping clock.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// ExportState copies the current offsets for durable backends.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Offsets: s.offsets.clone()}
}

// ImportState replaces every offset with the snapshot's. Entries without an
// id take their map key.
func (s *Store) ImportState(snapshot Snapshot) {
	table := make(offsetTable, len(snapshot.Offsets))
	for key, o := range snapshot.Offsets {
		if o.ID == "" {
			o.ID = key
		}
		table[o.ID] = o.Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = table
}

// RulesEngine returns the engine evaluated on commit.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction runs fn against a private copy of the offsets and swaps it
// in on success. A blocking rule result is returned together with a
// domain.RuleViolationError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{offsets: s.offsets.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	res, err := s.engine.Evaluate(ctx, tx.offsets, tx.changes)
	if err != nil {
		return Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	s.offsets = tx.offsets
	return res, nil
}

// View runs fn against a copy of the committed offsets.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.offsets.clone()
	s.mu.RUnlock()
	return fn(snapshot)
}

// GetOffset returns an offset by id.
func (s *Store) GetOffset(id string) (LabwareOffset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets.find(id)
}

// ListOffsets returns all offsets ordered by creation time.
func (s *Store) ListOffsets() []LabwareOffset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets.sorted()
}

type transaction struct {
	offsets offsetTable
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) Snapshot() TransactionView { return tx.offsets }

func (tx *transaction) FindOffset(id string) (LabwareOffset, bool) { return tx.offsets.find(id) }

// CreateOffset assigns a uuid and the transaction time when unset.
func (tx *transaction) CreateOffset(o LabwareOffset) (LabwareOffset, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if _, exists := tx.offsets[o.ID]; exists {
		return LabwareOffset{}, domain.ErrAlreadyExists{Entity: domain.EntityLabwareOffset, ID: o.ID}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = tx.now
	}
	tx.offsets[o.ID] = o.Clone()
	tx.changes = append(tx.changes, domain.Change{
		Entity: domain.EntityLabwareOffset,
		Action: domain.ActionCreate,
		After:  o.Clone(),
	})
	return o.Clone(), nil
}

func (tx *transaction) DeleteOffset(id string) error {
	current, ok := tx.offsets[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityLabwareOffset, ID: id}
	}
	delete(tx.offsets, id)
	tx.changes = append(tx.changes, domain.Change{
		Entity: domain.EntityLabwareOffset,
		Action: domain.ActionDelete,
		Before: current,
	})
	return nil
}
