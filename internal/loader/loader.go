// Package loader bulk-loads documents into a document store.
//
// Documents are written in fixed-size batches. When a batch write fails,
// the loader falls back to writing that batch's documents one at a time and
// silently drops the ones that still fail. After all batches a single
// commit is issued; its failure is the only error Load reports.
//
// The returned Result.Indexed is exact: it counts documents the store
// accepted, never documents that were merely attempted.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/docingest/internal/document"
	"github.com/JonMunkholm/docingest/internal/logging"
)

// DefaultBatchSize is the number of documents written per batch.
const DefaultBatchSize = 1000

// Store is the document store a Loader writes to.
//
// Add writes a batch as a unit; a failed Add may have written none, some
// or all of the batch. AddOne writes one document. Commit makes every
// write since the previous commit durable and visible.
type Store interface {
	Add(ctx context.Context, collection string, docs []document.Document) error
	AddOne(ctx context.Context, collection string, doc document.Document) error
	Commit(ctx context.Context, collection string) error
}

// Result summarizes a load.
type Result struct {
	// Indexed is the number of documents the store accepted.
	Indexed int `json:"indexed"`

	// Failed is the number of documents rejected during fallback.
	Failed int `json:"failed"`

	// Batches is the number of batch writes attempted.
	Batches int `json:"batches"`

	// FallbackBatches is the number of batches written one document at a time.
	FallbackBatches int `json:"fallback_batches"`
}

// CommitError is returned when the final commit fails. Indexed holds the
// count accepted before the commit; those writes may not be durable.
type CommitError struct {
	Collection string
	Indexed    int
	Err        error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s after %d documents: %v", e.Collection, e.Indexed, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Loader writes documents to a Store. A Loader holds no per-load state and
// may be shared between goroutines if its Store may.
type Loader struct {
	store     Store
	batchSize int
}

// Option configures a Loader.
type Option func(*Loader)

// WithBatchSize sets the batch size. Values below 1 select DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// New creates a Loader for store.
func New(store Store, opts ...Option) *Loader {
	l := &Loader{store: store, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Load writes docs to collection in order and commits once.
//
// A batch whose Add fails, or panics, is retried document by document;
// documents that fail again are counted in Result.Failed and otherwise
// ignored. Commit runs even when docs is empty. A commit failure returns
// a zero Result and a *CommitError.
func (l *Loader) Load(ctx context.Context, collection string, docs []document.Document) (Result, error) {
	logger := logging.WithFields(ctx, "collection", collection)
	start := time.Now()

	var res Result
	for from := 0; from < len(docs); from += l.batchSize {
		to := min(from+l.batchSize, len(docs))
		batch := docs[from:to]
		res.Batches++

		err := l.add(ctx, collection, batch)
		if err == nil {
			res.Indexed += len(batch)
			continue
		}

		logger.Warn("batch add failed, falling back to single documents",
			"batch", res.Batches,
			"size", len(batch),
			"error", err,
		)
		res.FallbackBatches++
		l.addEach(ctx, logger, collection, batch, from, &res)
	}

	if err := l.commit(ctx, collection); err != nil {
		logger.Error("commit failed", "indexed", res.Indexed, "error", err)
		return Result{}, &CommitError{Collection: collection, Indexed: res.Indexed, Err: err}
	}

	logger.Debug("load complete",
		"indexed", res.Indexed,
		"failed", res.Failed,
		"batches", res.Batches,
		"duration", time.Since(start),
	)
	return res, nil
}

func (l *Loader) addEach(ctx context.Context, logger *slog.Logger, collection string, batch []document.Document, offset int, res *Result) {
	for i, doc := range batch {
		if err := l.addOne(ctx, collection, doc); err != nil {
			res.Failed++
			logger.Debug("document rejected", "index", offset+i, "error", err)
			continue
		}
		res.Indexed++
	}
}

// add, addOne and commit convert a store panic into an error.

func (l *Loader) add(ctx context.Context, collection string, batch []document.Document) (err error) {
	defer recoverStore(&err)
	return l.store.Add(ctx, collection, batch)
}

func (l *Loader) addOne(ctx context.Context, collection string, doc document.Document) (err error) {
	defer recoverStore(&err)
	return l.store.AddOne(ctx, collection, doc)
}

func (l *Loader) commit(ctx context.Context, collection string) (err error) {
	defer recoverStore(&err)
	return l.store.Commit(ctx, collection)
}

func recoverStore(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("store panic: %v", r)
	}
}
