package domain

import (
	"context"
	"fmt"
)

// Transaction exposes the operations a persistence implementation must
// support within an atomic scope. Offsets are create-only; deletion exists
// for operator cleanup and is recorded as a change like any other.
type Transaction interface {
	Snapshot() TransactionView
	CreateOffset(LabwareOffset) (LabwareOffset, error)
	DeleteOffset(id string) error
	FindOffset(id string) (LabwareOffset, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetOffset(id string) (LabwareOffset, bool)
	ListOffsets() []LabwareOffset
}

// ErrNotFound indicates the requested record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrAlreadyExists indicates a create collided with an existing record id.
type ErrAlreadyExists struct {
	Entity EntityType
	ID     string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}
