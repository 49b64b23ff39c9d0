package collection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wanderhost/browse-api/internal/pkg/logger"
)

// DefaultPageSize is used when no page size option is given.
const DefaultPageSize = 12

// Observer receives fetch lifecycle events, typically for metrics.
type Observer interface {
	FetchStarted()
	FetchCommitted(state State, elapsed time.Duration)
	FetchDiscarded(elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) FetchStarted()                       {}
func (noopObserver) FetchCommitted(State, time.Duration) {}
func (noopObserver) FetchDiscarded(time.Duration)        {}

// Option configures a Store.
type Option func(*options)

type options struct {
	pageSize int
	debounce time.Duration
	observer Observer
	baseCtx  context.Context
}

// WithPageSize sets the page size requested from the backend.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithDebounce sets the quiet window for ApplyFiltersDebounced.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithObserver installs a fetch lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithBaseContext sets the context used by debounced fetches, which have no caller.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.baseCtx = ctx
		}
	}
}

// Store is the single source of truth for a filterable, paginated remote
// collection: the active filters, the current page and the result of the
// authoritative request.
//
// Every fetch is tagged with a sequence number taken when it is issued. Only
// the fetch whose tag still equals the latest issued tag may commit its
// result, so a slow older request can never overwrite a newer one.
type Store[T Item] struct {
	fetcher   Fetcher[T]
	observer  Observer
	baseCtx   context.Context
	pageSize  int
	debouncer *Debouncer

	mu         sync.Mutex
	filters    FilterSet
	pagination PaginationState
	outcome    Outcome[T]
	latestSeq  uint64
	cancel     context.CancelFunc
	closed     bool
	pending    *FilterSet // debounced filters waiting for the window to close
	version    uint64     // bumped on every published change

	listeners    map[uint64]func(Snapshot[T])
	nextListener uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// NewStore creates a store with empty filters on page 1 in the idle state.
func NewStore[T Item](fetcher Fetcher[T], opts ...Option) *Store[T] {
	o := options{
		pageSize: DefaultPageSize,
		debounce: DefaultDebounce,
		observer: noopObserver{},
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{
		fetcher:   fetcher,
		observer:  o.observer,
		baseCtx:   o.baseCtx,
		pageSize:  o.pageSize,
		debouncer: NewDebouncer(o.debounce),
		listeners: make(map[uint64]func(Snapshot[T])),
	}
	s.resetLocked()
	return s
}

// resetLocked must be called with mu held (or before the store is shared).
func (s *Store[T]) resetLocked() {
	s.filters = FilterSet{}
	s.pagination = PaginationState{CurrentPage: 1, PageSize: s.pageSize}
	s.outcome = Outcome[T]{State: StateIdle}
}

// Snapshot returns a copy of the current state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store[T]) snapshotLocked() Snapshot[T] {
	out := s.outcome
	if out.Items != nil {
		out.Items = append([]T(nil), out.Items...)
	}
	items := out.Items
	if items == nil {
		items = []T{}
	}
	return Snapshot[T]{
		Items:      items,
		Filters:    s.filters,
		Pagination: s.pagination,
		Outcome:    out,
		LatestSeq:  s.latestSeq,
	}
}

// publishLocked bumps the state version and returns the snapshot to deliver.
// Must be called with mu held.
func (s *Store[T]) publishLocked() (Snapshot[T], uint64) {
	s.version++
	return s.snapshotLocked(), s.version
}

// Subscribe registers fn to be called with a snapshot after every state
// change. Calls happen outside the store lock, one at a time and in state
// order; a snapshot older than one already delivered is skipped. fn must not
// block and must not call store methods that change state.
func (s *Store[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store[T]) notify(snap Snapshot[T], version uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.mu.Lock()
	fns := make([]func(Snapshot[T]), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

type fetchRequest struct {
	ctx      context.Context
	cancel   context.CancelFunc
	seq      uint64
	filters  FilterSet
	page     int
	pageSize int
}

// beginLocked issues a new request tag and moves the outcome to Loading,
// discarding the previous payload. Must be called with mu held.
func (s *Store[T]) beginLocked(ctx context.Context) fetchRequest {
	s.latestSeq++
	if s.cancel != nil {
		s.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.outcome = Outcome[T]{State: StateLoading, Seq: s.latestSeq}

	return fetchRequest{
		ctx:      fetchCtx,
		cancel:   cancel,
		seq:      s.latestSeq,
		filters:  s.filters,
		page:     s.pagination.CurrentPage,
		pageSize: s.pageSize,
	}
}

// Fetch loads the current filters and page. The outcome is Loading before
// Fetch calls the fetcher. It returns nil on success, the fetch error on
// failure, and ErrStaleResponseDiscarded if a newer fetch was issued while
// this one was in flight (in which case nothing was changed).
func (s *Store[T]) Fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	req := s.beginLocked(ctx)
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap, version)
	return s.run(req)
}

func (s *Store[T]) run(req fetchRequest) error {
	defer req.cancel()

	log := logger.FromContext(req.ctx)
	start := time.Now()
	s.observer.FetchStarted()
	log.Debug().
		Uint64("seq", req.seq).
		Int("page", req.page).
		Interface("filters", req.filters.Values()).
		Msg("collection fetch issued")

	res, err := s.fetcher.FetchPage(req.ctx, req.filters, req.page, req.pageSize)
	if err == nil && res == nil {
		err = ErrEmptyResponse
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	if req.seq != s.latestSeq {
		latest := s.latestSeq
		s.mu.Unlock()

		s.observer.FetchDiscarded(elapsed)
		log.Debug().
			Uint64("seq", req.seq).
			Uint64("latest_seq", latest).
			Dur("elapsed", elapsed).
			Msg("collection fetch superseded, response discarded")
		return ErrStaleResponseDiscarded
	}

	s.cancel = nil
	if err != nil {
		s.outcome = Outcome[T]{State: StateFailure, Err: err, Seq: req.seq}
	} else {
		items := append([]T(nil), res.Items...)
		if items == nil {
			items = []T{}
		}
		s.pagination = paginationFromPage(res, req.page, req.pageSize)
		s.outcome = Outcome[T]{State: StateSuccess, Items: items, Seq: req.seq}
	}
	state := s.outcome.State
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.observer.FetchCommitted(state, elapsed)
	if err != nil {
		log.Warn().Err(err).Uint64("seq", req.seq).Dur("elapsed", elapsed).Msg("collection fetch failed")
	} else {
		log.Debug().
			Uint64("seq", req.seq).
			Int("items", len(snap.Items)).
			Int("total_items", snap.Pagination.TotalItems).
			Dur("elapsed", elapsed).
			Msg("collection fetch committed")
	}

	s.notify(snap, version)
	return err
}

// SetFilters merges partial into the active filters without fetching.
// Keys outside the recognized set and invalid values are rejected and
// leave the filters unchanged.
func (s *Store[T]) SetFilters(partial map[string]string) error {
	s.mu.Lock()
	merged, err := s.filters.Merge(partial)
	if err == nil {
		err = merged.Validate()
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if merged == s.filters {
		s.mu.Unlock()
		return nil
	}
	s.filters = merged
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap, version)
	return nil
}

// ApplyFilters replaces the filters wholesale, returns to page 1 and fetches.
// A pending debounced apply is dropped.
func (s *Store[T]) ApplyFilters(ctx context.Context, filters FilterSet) error {
	if err := filters.Validate(); err != nil {
		return err
	}
	s.debouncer.Cancel()
	return s.applyFilters(ctx, filters)
}

func (s *Store[T]) applyFilters(ctx context.Context, filters FilterSet) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.pending = nil
	s.filters = filters
	s.pagination.CurrentPage = 1
	req := s.beginLocked(ctx)
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap, version)
	return s.run(req)
}

// ApplyFiltersDebounced validates filters now and applies them once no other
// debounced apply arrives within the debounce window. Use it for
// keystroke-driven input; discrete actions should call ApplyFilters.
func (s *Store[T]) ApplyFiltersDebounced(filters FilterSet) error {
	if err := filters.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.pending = &filters
	s.mu.Unlock()

	s.debouncer.Trigger(s.applyPending)
	return nil
}

// MergeFiltersDebounced merges partial into the filters a pending debounced
// apply will load, or into the active filters when nothing is pending, and
// restarts the debounce window. Keys absent from partial keep their value.
func (s *Store[T]) MergeFiltersDebounced(partial map[string]string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	base := s.filters
	if s.pending != nil {
		base = *s.pending
	}
	merged, err := base.Merge(partial)
	if err == nil {
		err = merged.Validate()
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.pending = &merged
	s.mu.Unlock()

	s.debouncer.Trigger(s.applyPending)
	return nil
}

// PendingFilters returns the filters a pending debounced apply will load.
func (s *Store[T]) PendingFilters() (FilterSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return FilterSet{}, false
	}
	return *s.pending, true
}

func (s *Store[T]) applyPending() {
	s.mu.Lock()
	if s.closed || s.pending == nil {
		s.mu.Unlock()
		return
	}
	filters := *s.pending
	s.pending = nil
	s.filters = filters
	s.pagination.CurrentPage = 1
	req := s.beginLocked(s.baseCtx)
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap, version)
	err := s.run(req)
	if err != nil && !errors.Is(err, ErrStaleResponseDiscarded) && !errors.Is(err, ErrStoreClosed) {
		logger.LogWarn(s.baseCtx, "debounced filter apply failed", "error", err.Error())
	}
}

// FlushDebounced runs a pending debounced apply immediately.
func (s *Store[T]) FlushDebounced() bool {
	return s.debouncer.Flush()
}

// DebouncePending reports whether a debounced apply is waiting.
func (s *Store[T]) DebouncePending() bool {
	return s.debouncer.Pending()
}

// SetPage moves to page and fetches. Pages outside [1, max(totalPages,1)]
// and the current page are no-ops: nothing changes and nothing is fetched.
func (s *Store[T]) SetPage(ctx context.Context, page int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if !s.pagination.Contains(page) || page == s.pagination.CurrentPage {
		s.mu.Unlock()
		return nil
	}
	s.pagination.CurrentPage = page
	req := s.beginLocked(ctx)
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap, version)
	return s.run(req)
}

// ClearFilters resets every filter to unset, returns to page 1 and fetches.
func (s *Store[T]) ClearFilters(ctx context.Context) error {
	s.debouncer.Cancel()
	return s.applyFilters(ctx, FilterSet{})
}

// Reset returns the store to its initial idle state. In-flight fetches
// become stale and will not commit.
func (s *Store[T]) Reset() {
	s.debouncer.Cancel()

	s.mu.Lock()
	s.latestSeq++
	s.pending = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.resetLocked()
	snap, version := s.publishLocked()
	s.mu.Unlock()

	s.notify(snap, version)
}

// Close stops the debouncer, abandons any in-flight fetch and rejects
// further operations. Snapshot keeps working.
func (s *Store[T]) Close() {
	s.debouncer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	s.latestSeq++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// PageSize returns the page size requested from the backend.
func (s *Store[T]) PageSize() int { return s.pageSize }
