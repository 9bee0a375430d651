// Package catalog rebuilds the list of registered names from the registry.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"weebdomains/pkg/metrics"
	"weebdomains/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoAccount = errors.New("catalog refresh needs a connected account")
	// ErrStale means a newer refresh was issued while this one was running;
	// its result was dropped.
	ErrStale = errors.New("catalog refresh superseded")
)

// RefreshError wraps the lookup that aborted a refresh. The previous catalog
// is kept.
type RefreshError struct {
	Stage string
	Name  string
	Err   error
}

func (e *RefreshError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("catalog %s %q: %v", e.Stage, e.Name, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Source is the registry read surface.
type Source interface {
	ListAllNames(ctx context.Context) ([]string, error)
	GetRecord(ctx context.Context, name string) (string, error)
	GetOwner(ctx context.Context, name string) (string, error)
}

// Gate decides whether refreshes may run; network.Guard satisfies it.
type Gate interface {
	Require(ctx context.Context) error
}

// Sink receives each applied catalog, in refresh order. It must not call
// Refresh or Reset.
type Sink func(entries []models.ListedName)

type Reader struct {
	source      Source
	gate        Gate
	account     func() string
	concurrency int
	sink        Sink
	logger      *slog.Logger

	issued atomic.Uint64

	// deliver orders apply and Reset so sink deliveries follow token order.
	deliver sync.Mutex

	mu      sync.RWMutex
	entries []models.ListedName
	applied uint64
	ids     map[string]string
}

// NewReader builds a reader. concurrency bounds the per-name lookups in
// flight; values below 1 mean unbounded.
func NewReader(source Source, gate Gate, account func() string, concurrency int) *Reader {
	return &Reader{
		source:      source,
		gate:        gate,
		account:     account,
		concurrency: concurrency,
		ids:         make(map[string]string),
		logger:      slog.Default().With("component", "catalog"),
	}
}

// SetSink registers the callback for applied catalogs.
func (r *Reader) SetSink(s Sink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

// Entries returns a copy of the last applied catalog.
func (r *Reader) Entries() []models.ListedName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.ListedName(nil), r.entries...)
}

// Reset drops the catalog and invalidates refreshes already running. Ids stay
// bound to their names.
func (r *Reader) Reset() {
	r.issued.Add(1)
	r.deliver.Lock()
	defer r.deliver.Unlock()
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
	metrics.CatalogNames.Set(0)
}

// Refresh rebuilds the catalog. Every lookup must succeed for the result to
// be applied, and it is applied only if no later refresh was issued meanwhile.
func (r *Reader) Refresh(ctx context.Context) ([]models.ListedName, error) {
	token := r.issued.Add(1)
	start := time.Now()

	entries, err := r.fetch(ctx)
	metrics.CatalogRefreshLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		result := "error"
		if errors.Is(err, ErrNoAccount) || errors.Is(err, context.Canceled) {
			result = "skipped"
		}
		metrics.CatalogRefreshesTotal.WithLabelValues(result).Inc()
		return nil, err
	}

	if !r.apply(token, entries) {
		metrics.CatalogRefreshesTotal.WithLabelValues("stale").Inc()
		r.logger.Debug("dropping stale catalog", "token", token, "latest", r.issued.Load())
		return nil, ErrStale
	}
	metrics.CatalogRefreshesTotal.WithLabelValues("applied").Inc()
	r.logger.Info("catalog refreshed", "names", len(entries), "took", time.Since(start))
	return entries, nil
}

func (r *Reader) fetch(ctx context.Context) ([]models.ListedName, error) {
	if r.account == nil || r.account() == "" {
		return nil, ErrNoAccount
	}
	if r.gate != nil {
		if err := r.gate.Require(ctx); err != nil {
			return nil, err
		}
	}

	names, err := r.source.ListAllNames(ctx)
	if err != nil {
		return nil, &RefreshError{Stage: "list names", Err: err}
	}

	entries := make([]models.ListedName, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, name := range names {
		entries[i] = models.ListedName{Position: i, Name: name}
		g.Go(func() error {
			record, err := r.source.GetRecord(gctx, name)
			if err != nil {
				return &RefreshError{Stage: "record", Name: name, Err: err}
			}
			entries[i].Record = record
			return nil
		})
		g.Go(func() error {
			owner, err := r.source.GetOwner(gctx, name)
			if err != nil {
				return &RefreshError{Stage: "owner", Name: name, Err: err}
			}
			entries[i].Owner = owner
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Reader) apply(token uint64, entries []models.ListedName) bool {
	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	if token != r.issued.Load() || token < r.applied {
		r.mu.Unlock()
		return false
	}
	for i := range entries {
		id, ok := r.ids[entries[i].Name]
		if !ok {
			id = uuid.NewString()
			r.ids[entries[i].Name] = id
		}
		entries[i].ID = id
	}
	r.entries = append([]models.ListedName(nil), entries...)
	r.applied = token
	sink := r.sink
	r.mu.Unlock()

	metrics.CatalogNames.Set(float64(len(entries)))
	if sink != nil {
		sink(append([]models.ListedName(nil), entries...))
	}
	return true
}
