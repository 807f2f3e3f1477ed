// Package services orchestrates the ledger: load, filter, aggregate for the
// dashboard, and merge-then-overwrite for saves.
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pagos/internal/amqp"
	"pagos/internal/cache"
	"pagos/internal/core"
	"pagos/internal/log"
	"pagos/internal/sheets"
)

// ErrStoreUnavailable wraps every failure to read or write the row store.
var ErrStoreUnavailable = errors.New("ledger store unavailable")

const snapshotKey = "ledger"

// Publisher announces ledger changes to other dashboard instances.
type Publisher interface {
	PublishLedgerSaved(ctx context.Context, msg *amqp.LedgerSavedMessage) error
}

// Dashboard is everything one page render needs.
type Dashboard struct {
	Today           core.Date
	Filters         core.Filters
	All             core.Table
	View            core.Table
	KPIs            core.KPIs
	PriorityOptions []string
	StatusOptions   []string
}

// LedgerService is created once per process and shared by all requests.
type LedgerService struct {
	store     sheets.RowStore
	backend   string
	cache     cache.Cache[core.Table]
	group     singleflight.Group
	publisher Publisher

	// generation is bumped around every write. A read that started in an
	// older generation is not cached.
	snapshotMu sync.Mutex
	generation uint64

	now       func() time.Time
	logger    *log.Logger
}

type Option func(*LedgerService)

func WithCache(c cache.Cache[core.Table]) Option {
	return func(s *LedgerService) { s.cache = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l.WithComponent(log.ComponentLedger) }
}

// WithBackendName labels log lines and change notifications.
func WithBackendName(name string) Option {
	return func(s *LedgerService) { s.backend = name }
}

func NewLedgerService(store sheets.RowStore, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:   store,
		backend: "memory",
		cache:   cache.NewLRUCache[core.Table](1, 0),
		now:     time.Now,
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the worksheet with the canonical header row when absent.
func (s *LedgerService) Init(ctx context.Context) error {
	if err := s.store.EnsureHeaders(ctx, core.Headers); err != nil {
		return fmt.Errorf("%w: ensure headers: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Today is the reference date for the KPI windows.
func (s *LedgerService) Today() core.Date {
	return core.Today(s.now())
}

// Load returns the normalized ledger. Concurrent callers share one read;
// refresh skips the snapshot cache.
func (s *LedgerService) Load(ctx context.Context, refresh bool) (core.Table, error) {
	if !refresh {
		if t, ok := s.cache.Get(snapshotKey); ok {
			s.logger.DebugContext(ctx, "Ledger served from cache", log.FieldRows, t.Len(), log.FieldCached, true)
			return t, nil
		}
	} else {
		s.cache.Delete(snapshotKey)
	}

	gen := s.currentGeneration()
	// The shared read outlives any single caller's cancellation.
	readCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(snapshotKey+"/"+strconv.FormatUint(gen, 10), func() (any, error) {
		raw, err := s.store.ReadAll(readCtx)
		if err != nil {
			return core.Table{}, fmt.Errorf("%w: read rows: %w", ErrStoreUnavailable, err)
		}
		t := core.Normalize(raw)
		if len(t.Missing) > 0 {
			s.logger.WarnContext(ctx, "Ledger header is missing columns", "missing", t.Missing)
		}
		cached := s.cacheSnapshot(gen, t)
		s.logger.InfoContext(ctx, "Ledger loaded", log.FieldRows, t.Len(), log.FieldBackend, s.backend, log.FieldCached, cached)
		return t, nil
	})
	if err != nil {
		return core.Table{}, err
	}
	return v.(core.Table), nil
}

// Dashboard loads the ledger and computes the filtered view and the KPIs.
func (s *LedgerService) Dashboard(ctx context.Context, f core.Filters, refresh bool) (*Dashboard, error) {
	all, err := s.Load(ctx, refresh)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	view := core.Filter(all, f)
	return &Dashboard{
		Today:           today,
		Filters:         f,
		All:             all,
		View:            view,
		KPIs:            core.ComputeKPIs(view, all, today),
		PriorityOptions: core.Options(all, func(r core.Record) string { return r.Priority }),
		StatusOptions:   core.Options(all, func(r core.Record) string { return r.Status }),
	}, nil
}

// Save replaces the rows matching f with edited and persists the whole
// ledger. Rows hidden by f are kept as they are in the store right now.
func (s *LedgerService) Save(ctx context.Context, f core.Filters, edited []core.Record) (core.Table, error) {
	full, err := s.Load(ctx, true)
	if err != nil {
		return core.Table{}, err
	}
	view := core.Filter(full, f)
	merged := core.Merge(full, view, edited)

	if err := s.persist(ctx, merged); err != nil {
		s.logger.LogError(ctx, "Failed to save ledger", err, log.ErrorTypeStore, log.OpSave,
			log.NewFields().WithFilters(f.Priority, f.Status))
		return core.Table{}, err
	}

	s.logger.InfoContext(ctx, "Ledger saved", log.NewFields().
		WithSave(s.backend, merged.Len(), full.Len()-view.Len(), len(edited)).
		WithFilters(f.Priority, f.Status).
		ToSlice()...)
	s.notify(ctx, amqp.ActionSaved, merged.Len())
	return merged, nil
}

// AddRecord validates r, appends it and persists the whole ledger.
func (s *LedgerService) AddRecord(ctx context.Context, r core.Record) (core.Table, error) {
	if err := r.Validate(); err != nil {
		return core.Table{}, err
	}
	full, err := s.Load(ctx, true)
	if err != nil {
		return core.Table{}, err
	}
	merged := core.Append(full, r)
	if err := s.persist(ctx, merged); err != nil {
		s.logger.LogError(ctx, "Failed to append record", err, log.ErrorTypeStore, log.OpAppend, nil)
		return core.Table{}, err
	}

	s.logger.InfoContext(ctx, "Record added",
		log.FieldProvider, r.Provider,
		log.FieldAmount, r.Amount.String(),
		log.FieldRows, merged.Len())
	s.notify(ctx, amqp.ActionAdded, merged.Len())
	return merged, nil
}

// ExportCSV writes the rows matching f, header first.
func (s *LedgerService) ExportCSV(ctx context.Context, f core.Filters, w io.Writer) error {
	all, err := s.Load(ctx, false)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(core.Filter(all, f).Rows()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Ping reports whether the store can be read.
func (s *LedgerService) Ping(ctx context.Context) error {
	_, err := s.Load(ctx, false)
	return err
}

func (s *LedgerService) persist(ctx context.Context, t core.Table) error {
	// The snapshot is dropped even when the write fails.
	s.invalidate()
	defer s.invalidate()
	if err := s.store.OverwriteAll(ctx, t.Rows()); err != nil {
		return fmt.Errorf("%w: overwrite: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *LedgerService) currentGeneration() uint64 {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()
	return s.generation
}

// cacheSnapshot stores t unless a write started after it was read.
func (s *LedgerService) cacheSnapshot(gen uint64, t core.Table) bool {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()
	if gen != s.generation {
		return false
	}
	s.cache.Set(snapshotKey, t)
	return true
}

func (s *LedgerService) invalidate() {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()
	s.generation++
	s.cache.Purge()
}

func (s *LedgerService) notify(ctx context.Context, action string, rows int) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerSaved(ctx, amqp.NewLedgerSavedMessage(action, s.backend, rows)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger change", log.FieldError, err)
	}
}
