// Package postgres provides a Postgres-backed offset store that mirrors the
// in-memory semantics and keeps one row per offset in a normalized table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"deckcore/internal/infra/persistence/memory"
	"deckcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/deckcore?sslmode=disable"
)

const offsetsDDL = `CREATE TABLE IF NOT EXISTS labware_offsets (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	definition_uri TEXT NOT NULL,
	location_sequence JSONB NOT NULL,
	vector_x DOUBLE PRECISION NOT NULL,
	vector_y DOUBLE PRECISION NOT NULL,
	vector_z DOUBLE PRECISION NOT NULL
)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists offsets to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	// mu serialises transactions with their table writes.
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the offsets table exists and hydrates the in-memory store from it.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, offsetsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure offsets table: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies fn in memory, then writes the offsets table. When
// the write fails the in-memory state is rolled back to match the table.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return res, err
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, created_at, definition_uri, location_sequence, vector_x, vector_y, vector_z FROM labware_offsets ORDER BY created_at`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select offsets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Offsets: make(map[string]domain.LabwareOffset)}
	for rows.Next() {
		var (
			o        domain.LabwareOffset
			created  time.Time
			sequence []byte
		)
		if err := rows.Scan(&o.ID, &created, &o.DefinitionURI, &sequence, &o.Vector.X, &o.Vector.Y, &o.Vector.Z); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan offset: %w", err)
		}
		if err := json.Unmarshal(sequence, &o.LocationSequence); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode location sequence for %s: %w", o.ID, err)
		}
		o.CreatedAt = created.UTC()
		snapshot.Offsets[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate offsets: %w", err)
	}
	return snapshot, nil
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context) error {
	offsets := s.ListOffsets()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE labware_offsets`); err != nil {
		return fmt.Errorf("truncate offsets: %w", err)
	}
	for _, o := range offsets {
		sequence, err := json.Marshal(o.LocationSequence)
		if err != nil {
			return fmt.Errorf("encode location sequence for %s: %w", o.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO labware_offsets (id, created_at, definition_uri, location_sequence, vector_x, vector_y, vector_z) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, o.CreatedAt, o.DefinitionURI, string(sequence), o.Vector.X, o.Vector.Y, o.Vector.Z,
		); err != nil {
			return fmt.Errorf("insert offset %s: %w", o.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
