// Package postgres is a document store backed by a PostgreSQL table.
//
// Every collection shares one table keyed by (collection, id); document
// bodies are stored as JSONB. Writes for a collection accumulate in one
// open transaction until Commit. Each Add and AddOne runs inside its own
// savepoint, so a failed write is rolled back without losing the writes
// before it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/docingest/internal/document"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "documents"

// Store writes documents to PostgreSQL. It is safe for concurrent use;
// writes to the same collection are serialized.
type Store struct {
	pool  *pgxpool.Pool
	name  string
	table string // quoted

	mu      sync.Mutex
	pending map[string]*pendingTx
}

// pendingTx is the open transaction of one collection.
type pendingTx struct {
	mu        sync.Mutex
	tx        pgx.Tx
	savepoint int
}

// New creates a Store on pool using table. The pool is owned by the caller.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		pool:    pool,
		name:    table,
		table:   pgx.Identifier{table}.Sanitize(),
		pending: make(map[string]*pendingTx),
	}
}

// EnsureSchema creates the documents table and its index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			body       JSONB NOT NULL,
			indexed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (body)`,
			pgx.Identifier{s.name + "_body_gin"}.Sanitize(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Add upserts docs in one savepoint of the collection's transaction.
func (s *Store) Add(ctx context.Context, collection string, docs []document.Document) error {
	rows, err := s.encode(docs)
	if err != nil {
		return err
	}
	return s.write(ctx, collection, rows)
}

// AddOne upserts a single document.
func (s *Store) AddOne(ctx context.Context, collection string, doc document.Document) error {
	return s.Add(ctx, collection, []document.Document{doc})
}

// Commit commits the collection's open transaction. It is a no-op when
// nothing has been written since the last commit.
func (s *Store) Commit(ctx context.Context, collection string) error {
	s.mu.Lock()
	p, ok := s.pending[collection]
	delete(s.pending, collection)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", collection, err)
	}
	return nil
}

// Close rolls back every uncommitted transaction.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*pendingTx)
	s.mu.Unlock()

	var errs []error
	for collection, p := range pending {
		p.mu.Lock()
		if err := p.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			errs = append(errs, fmt.Errorf("rollback %s: %w", collection, err))
		}
		p.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Count returns the number of committed documents in collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE collection = $1`, s.table),
		collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

type row struct {
	id   string
	body []byte
}

func (s *Store) encode(docs []document.Document) ([]row, error) {
	rows := make([]row, len(docs))
	for i, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
		rows[i] = row{id: documentID(doc), body: body}
	}
	return rows, nil
}

// documentID returns the document's id, or a random one when it has none.
func documentID(doc document.Document) string {
	if id, ok := doc.ID(); ok {
		return id
	}
	return uuid.NewString()
}

func (s *Store) write(ctx context.Context, collection string, rows []row) error {
	p, err := s.txFor(ctx, collection)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.savepoint++
	savepointName := fmt.Sprintf("sp_%d", p.savepoint)
	if _, err := p.tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := s.upsert(ctx, p.tx, collection, rows); err != nil {
		if _, rbErr := p.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return err
	}

	if _, err := p.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, tx pgx.Tx, collection string, rows []row) error {
	query := fmt.Sprintf(`INSERT INTO %s (collection, id, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE
		SET body = EXCLUDED.body, indexed_at = now()`, s.table)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, collection, r.id, string(r.body))
	}

	results := tx.SendBatch(ctx, batch)
	for i := range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert document %q: %w", rows[i].id, err)
		}
	}
	return results.Close()
}

// txFor returns the collection's open transaction, beginning one if needed.
func (s *Store) txFor(ctx context.Context, collection string) (*pendingTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[collection]; ok {
		return p, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	p := &pendingTx{tx: tx}
	s.pending[collection] = p
	return p, nil
}
