// Package ingest runs document ingests: it checks the target collection,
// bounds concurrency, parses the input and hands the documents to the
// loader.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/docingest/internal/config"
	"github.com/JonMunkholm/docingest/internal/format"
	"github.com/JonMunkholm/docingest/internal/loader"
	"github.com/JonMunkholm/docingest/internal/logging"
	"github.com/JonMunkholm/docingest/internal/store/solr"
)

// Searcher is implemented by stores that can answer queries.
type Searcher interface {
	Search(ctx context.Context, collection string, q solr.Query) (*solr.SearchResult, error)
}

// CollectionLister is implemented by stores that can enumerate their
// collections.
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]string, error)
}

// Config holds service settings.
type Config struct {
	Backend            string
	BatchSize          int
	MaxInputSize       int64
	MaxConcurrent      int
	MaxWait            time.Duration
	Timeout            time.Duration
	AllowedCollections []string
}

// ConfigFrom builds service settings from the application config.
func ConfigFrom(cfg config.IngestConfig, backend string) Config {
	return Config{
		Backend:            backend,
		BatchSize:          cfg.BatchSize,
		MaxInputSize:       cfg.MaxInputSize,
		MaxConcurrent:      cfg.MaxConcurrent,
		MaxWait:            cfg.MaxWaitTime,
		Timeout:            cfg.Timeout,
		AllowedCollections: cfg.AllowedCollections,
	}
}

// Result describes a finished ingest.
type Result struct {
	IngestID   string        `json:"ingest_id"`
	Collection string        `json:"collection"`
	Format     format.Format `json:"format"`
	Bytes      int64         `json:"bytes"`
	Parsed     int           `json:"parsed"`
	Indexed    int           `json:"indexed"`
	Failed     int           `json:"failed"`
	Batches    int           `json:"batches"`
	Duration   time.Duration `json:"duration_ns"`
}

// Status is a snapshot of the service.
type Status struct {
	Backend            string        `json:"backend"`
	Ingests            LimiterStatus `json:"ingests"`
	AllowedCollections []string      `json:"allowed_collections,omitempty"`
	Search             bool          `json:"search"`
}

// Service ingests documents into one store.
type Service struct {
	backend  string
	loader   *loader.Loader
	searcher Searcher
	lister   CollectionLister
	limiter  *Limiter
	allow    AllowList
	maxInput int64
	timeout  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithSearcher enables Search.
func WithSearcher(s Searcher) Option {
	return func(svc *Service) { svc.searcher = s }
}

// WithCollectionLister enables Collections.
func WithCollectionLister(l CollectionLister) Option {
	return func(svc *Service) { svc.lister = l }
}

// NewService creates a service writing to store.
func NewService(store loader.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		backend:  cfg.Backend,
		loader:   loader.New(store, loader.WithBatchSize(cfg.BatchSize)),
		limiter:  NewLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		allow:    NewAllowList(cfg.AllowedCollections),
		maxInput: cfg.MaxInputSize,
		timeout:  cfg.Timeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index parses r as f and loads the documents into collection.
//
// Malformed input loads nothing and returns a *format.ParseError. A
// failed commit returns a *loader.CommitError. Documents the store rejects
// individually are counted in Result.Failed.
func (s *Service) Index(ctx context.Context, collection string, f format.Format, r io.Reader) (*Result, error) {
	if err := s.allow.Assert(collection); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := &Result{
		IngestID:   uuid.NewString(),
		Collection: collection,
		Format:     f,
	}
	ctx = logging.WithIngestID(ctx, res.IngestID)
	logger := logging.WithFields(ctx, "collection", collection, "format", f)
	start := time.Now()

	logger.Info("ingest started")

	counter := format.NewCountingReader(r)
	docs, err := format.Parse(f, counter, s.maxInput)
	res.Bytes = counter.BytesRead
	if err != nil {
		logger.Warn("ingest rejected", "bytes", res.Bytes, "error", err)
		return nil, fmt.Errorf("ingest into %s: %w", collection, err)
	}
	res.Parsed = len(docs)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest into %s: %w", collection, err)
	}

	loaded, err := s.loader.Load(ctx, collection, docs)
	if err != nil {
		return nil, fmt.Errorf("ingest into %s: %w", collection, err)
	}

	res.Indexed = loaded.Indexed
	res.Failed = loaded.Failed
	res.Batches = loaded.Batches
	res.Duration = time.Since(start)

	logger.Info("ingest finished",
		"bytes", res.Bytes,
		"parsed", res.Parsed,
		"indexed", res.Indexed,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return res, nil
}

// IndexJSON ingests a JSON array of objects.
func (s *Service) IndexJSON(ctx context.Context, collection string, r io.Reader) (*Result, error) {
	return s.Index(ctx, collection, format.JSON, r)
}

// IndexCSV ingests CSV with a header row.
func (s *Service) IndexCSV(ctx context.Context, collection string, r io.Reader) (*Result, error) {
	return s.Index(ctx, collection, format.CSV, r)
}

// IndexXML ingests an XML document.
func (s *Service) IndexXML(ctx context.Context, collection string, r io.Reader) (*Result, error) {
	return s.Index(ctx, collection, format.XML, r)
}

// Search queries collection. It returns ErrSearchUnsupported when the store
// cannot search.
func (s *Service) Search(ctx context.Context, collection string, q solr.Query) (*solr.SearchResult, error) {
	if s.searcher == nil {
		return nil, ErrSearchUnsupported
	}
	if err := s.allow.Assert(collection); err != nil {
		return nil, err
	}
	if _, err := q.Params(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSearch, err)
	}
	return s.searcher.Search(ctx, collection, q)
}

// Collections lists the store's collections that the allow-list permits.
// It returns ErrListUnsupported when the store cannot enumerate them.
func (s *Service) Collections(ctx context.Context) ([]string, error) {
	if s.lister == nil {
		return nil, ErrListUnsupported
	}
	names, err := s.lister.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	allowed := s.allow.Filter(names)
	if allowed == nil {
		allowed = []string{}
	}
	return allowed, nil
}

// Status reports the backend and ingest slot usage.
func (s *Service) Status() Status {
	return Status{
		Backend:            s.backend,
		Ingests:            s.limiter.Status(),
		AllowedCollections: s.allow.Names(),
		Search:             s.searcher != nil,
	}
}

// WaitForDrain blocks until running ingests finish or ctx ends.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
