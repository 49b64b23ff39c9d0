package collection

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testItem struct {
	ID string
}

func (i testItem) Key() string { return i.ID }

type reply struct {
	page *Page[testItem]
	err  error
}

type pendingCall struct {
	ctx      context.Context
	filters  FilterSet
	page     int
	pageSize int
	reply    chan reply
}

// gatedFetcher blocks every call until the test answers it, so tests decide
// the order in which responses arrive.
type gatedFetcher struct {
	calls chan *pendingCall
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan *pendingCall, 16)}
}

func (f *gatedFetcher) FetchPage(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
	c := &pendingCall{ctx: ctx, filters: filters, page: page, pageSize: pageSize, reply: make(chan reply, 1)}
	f.calls <- c
	r := <-c.reply
	return r.page, r.err
}

func (f *gatedFetcher) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch call")
		return nil
	}
}

func (f *gatedFetcher) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected fetch call for page %d", c.page)
	default:
	}
}

func pageOf(page, totalPages, totalItems int, ids ...string) *Page[testItem] {
	items := make([]testItem, len(ids))
	for i, id := range ids {
		items[i] = testItem{ID: id}
	}
	return &Page[testItem]{Items: items, Page: page, TotalPages: totalPages, PageSize: DefaultPageSize, TotalItems: totalItems}
}

func goFetch(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for operation to return")
		return nil
	}
}

// loadTo drives the store to a committed page so pagination is known.
func loadTo(t *testing.T, s *Store[testItem], f *gatedFetcher, res *Page[testItem]) {
	t.Helper()
	done := goFetch(func() error { return s.Fetch(context.Background()) })
	f.next(t).reply <- reply{page: res}
	if err := waitErr(t, done); err != nil {
		t.Fatalf("initial fetch failed: %v", err)
	}
}

func TestInitialLoad(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	snap := s.Snapshot()
	if snap.Outcome.State != StateIdle {
		t.Fatalf("expected idle, got %s", snap.Outcome.State)
	}
	if snap.Pagination.CurrentPage != 1 {
		t.Fatalf("expected page 1, got %d", snap.Pagination.CurrentPage)
	}
	if !snap.Filters.IsEmpty() {
		t.Fatalf("expected empty filters, got %+v", snap.Filters)
	}

	var mu sync.Mutex
	var states []State
	s.Subscribe(func(snap Snapshot[testItem]) {
		mu.Lock()
		states = append(states, snap.Outcome.State)
		mu.Unlock()
	})

	done := goFetch(func() error { return s.Fetch(context.Background()) })
	call := f.next(t)

	if got := s.Snapshot().Outcome.State; got != StateLoading {
		t.Fatalf("expected loading while request in flight, got %s", got)
	}
	if call.page != 1 || call.pageSize != DefaultPageSize {
		t.Fatalf("unexpected request page=%d size=%d", call.page, call.pageSize)
	}

	call.reply <- reply{page: pageOf(1, 3, 30, "a", "b", "c")}
	if err := waitErr(t, done); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	snap = s.Snapshot()
	if snap.Outcome.State != StateSuccess {
		t.Fatalf("expected success, got %s", snap.Outcome.State)
	}
	if !reflect.DeepEqual(snap.Keys(), []string{"a", "b", "c"}) {
		t.Fatalf("unexpected items %v", snap.Keys())
	}
	want := PaginationState{CurrentPage: 1, TotalPages: 3, PageSize: DefaultPageSize, TotalItems: 30}
	if snap.Pagination != want {
		t.Fatalf("expected pagination %+v, got %+v", want, snap.Pagination)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(states, []State{StateLoading, StateSuccess}) {
		t.Fatalf("expected loading then success, got %v", states)
	}
}

func TestLatestIssuedFetchWins(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	errA := goFetch(func() error { return s.Fetch(context.Background()) })
	a := f.next(t)

	errB := goFetch(func() error {
		return s.ApplyFilters(context.Background(), FilterSet{Query: "kayak"})
	})
	b := f.next(t)

	if a.ctx.Err() == nil {
		t.Fatal("expected superseded request context to be cancelled")
	}
	if b.filters.Query != "kayak" {
		t.Fatalf("expected newer request to carry new filters, got %+v", b.filters)
	}

	b.reply <- reply{page: pageOf(1, 1, 1, "kayak-tour")}
	if err := waitErr(t, errB); err != nil {
		t.Fatalf("newer fetch failed: %v", err)
	}

	// The older request resolves last and must not overwrite anything.
	a.reply <- reply{page: pageOf(1, 9, 100, "stale-1", "stale-2")}
	if err := waitErr(t, errA); !errors.Is(err, ErrStaleResponseDiscarded) {
		t.Fatalf("expected stale discard, got %v", err)
	}

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Keys(), []string{"kayak-tour"}) {
		t.Fatalf("expected newer result, got %v", snap.Keys())
	}
	if snap.Pagination.TotalItems != 1 || snap.Pagination.TotalPages != 1 {
		t.Fatalf("pagination overwritten by stale response: %+v", snap.Pagination)
	}
	if snap.Outcome.Seq != snap.LatestSeq {
		t.Fatalf("committed seq %d does not match latest %d", snap.Outcome.Seq, snap.LatestSeq)
	}
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	errA := goFetch(func() error { return s.Fetch(context.Background()) })
	a := f.next(t)
	errB := goFetch(func() error { return s.Fetch(context.Background()) })
	b := f.next(t)

	a.reply <- reply{err: &TransportError{Op: "list", Err: context.Canceled}}
	if err := waitErr(t, errA); !errors.Is(err, ErrStaleResponseDiscarded) {
		t.Fatalf("expected stale discard, got %v", err)
	}
	if got := s.Snapshot().Outcome.State; got != StateLoading {
		t.Fatalf("stale failure must not leave loading, got %s", got)
	}

	b.reply <- reply{page: pageOf(1, 1, 1, "fresh")}
	if err := waitErr(t, errB); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if s.Snapshot().IsFailure() {
		t.Fatal("store reports failure from a superseded request")
	}
}

func TestSetPageOutOfRangeIsNoop(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)
	loadTo(t, s, f, pageOf(1, 4, 40, "a"))

	before := s.Snapshot()
	for _, page := range []int{0, -1, 4 + 5, 1} {
		if err := s.SetPage(context.Background(), page); err != nil {
			t.Fatalf("SetPage(%d) returned %v", page, err)
		}
		f.expectNoCall(t)
		after := s.Snapshot()
		if after.Pagination != before.Pagination || after.LatestSeq != before.LatestSeq {
			t.Fatalf("SetPage(%d) changed state: %+v", page, after.Pagination)
		}
	}

	done := goFetch(func() error { return s.SetPage(context.Background(), 3) })
	call := f.next(t)
	if call.page != 3 {
		t.Fatalf("expected request for page 3, got %d", call.page)
	}
	if got := s.Snapshot().Pagination.CurrentPage; got != 3 {
		t.Fatalf("expected current page 3 while loading, got %d", got)
	}
	call.reply <- reply{page: pageOf(3, 4, 40, "c")}
	if err := waitErr(t, done); err != nil {
		t.Fatalf("page fetch failed: %v", err)
	}
}

func TestSetPageBeforeAnyResult(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	if err := s.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.expectNoCall(t)
	if got := s.Snapshot().Pagination.CurrentPage; got != 1 {
		t.Fatalf("expected page 1, got %d", got)
	}
}

func TestApplyFiltersResetsPage(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)
	loadTo(t, s, f, pageOf(1, 5, 50, "a"))

	done := goFetch(func() error { return s.SetPage(context.Background(), 3) })
	f.next(t).reply <- reply{page: pageOf(3, 5, 50, "c")}
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Pagination.CurrentPage; got != 3 {
		t.Fatalf("expected page 3, got %d", got)
	}

	done = goFetch(func() error {
		return s.ApplyFilters(context.Background(), FilterSet{Location: "Lisbon", Category: "food"})
	})
	call := f.next(t)
	if call.page != 1 {
		t.Fatalf("expected filter change to request page 1, got %d", call.page)
	}
	call.reply <- reply{page: pageOf(1, 2, 14, "tasca")}
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if snap.Pagination.CurrentPage != 1 {
		t.Fatalf("expected page 1 after filter change, got %d", snap.Pagination.CurrentPage)
	}
	if snap.Filters.Location != "Lisbon" || snap.Filters.Category != "food" {
		t.Fatalf("filters not applied: %+v", snap.Filters)
	}
}

func TestClearFiltersIsIdempotent(t *testing.T) {
	var calls int32
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		atomic.AddInt32(&calls, 1)
		return pageOf(page, 3, 30, "x"), nil
	})
	s := NewStore[testItem](fetcher)
	ctx := context.Background()

	if err := s.ApplyFilters(ctx, FilterSet{Query: "surf", Guests: "4"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPage(ctx, 2); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.ClearFilters(ctx); err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
		snap := s.Snapshot()
		if snap.Filters != (FilterSet{}) {
			t.Fatalf("clear #%d left filters %+v", i+1, snap.Filters)
		}
		if snap.Pagination.CurrentPage != 1 {
			t.Fatalf("clear #%d left page %d", i+1, snap.Pagination.CurrentPage)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 4 fetches, got %d", got)
	}
}

func TestEmptyResultIsSuccess(t *testing.T) {
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		return &Page[testItem]{Page: 1, TotalPages: 0, PageSize: pageSize, TotalItems: 0}, nil
	})
	s := NewStore[testItem](fetcher)

	if err := s.ApplyFilters(context.Background(), FilterSet{Query: "zzz-nonexistent"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Outcome.State != StateSuccess {
		t.Fatalf("expected success, got %s", snap.Outcome.State)
	}
	if !snap.IsEmptyResult() || snap.IsFailure() || snap.IsLoading() {
		t.Fatal("empty result must be distinguishable from failure and loading")
	}
	if snap.Pagination.TotalItems != 0 {
		t.Fatalf("expected zero total items, got %d", snap.Pagination.TotalItems)
	}
	if snap.Pagination.TotalPages > 1 {
		t.Fatalf("expected 0 or 1 total pages, got %d", snap.Pagination.TotalPages)
	}
	if snap.Pagination.CurrentPage != 1 {
		t.Fatalf("expected page 1, got %d", snap.Pagination.CurrentPage)
	}
	if snap.Items == nil {
		t.Fatal("expected empty, non-nil item list")
	}
}

func TestFailureSurfacesInOutcome(t *testing.T) {
	upstream := &ServerError{Op: "activities list", StatusCode: 502, Body: "bad gateway"}
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		return nil, upstream
	})
	s := NewStore[testItem](fetcher)

	err := s.Fetch(context.Background())
	if !IsServer(err) {
		t.Fatalf("expected server error, got %v", err)
	}

	snap := s.Snapshot()
	if !snap.IsFailure() {
		t.Fatalf("expected failure, got %s", snap.Outcome.State)
	}
	if snap.IsEmptyResult() {
		t.Fatal("failure must not look like an empty result")
	}
	if len(snap.Items) != 0 {
		t.Fatalf("failure must not keep items, got %v", snap.Keys())
	}
	var se *ServerError
	if !errors.As(snap.Outcome.Err, &se) || se.StatusCode != 502 {
		t.Fatalf("expected outcome to carry server error, got %v", snap.Outcome.Err)
	}
}

func TestFailureClearsPreviousItems(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)
	loadTo(t, s, f, pageOf(1, 2, 20, "a", "b"))

	done := goFetch(func() error { return s.Fetch(context.Background()) })
	call := f.next(t)
	if len(s.Snapshot().Items) != 0 {
		t.Fatal("loading must discard the previous payload")
	}
	call.reply <- reply{err: &TransportError{Op: "activities list", Timeout: true, Err: context.DeadlineExceeded}}
	if err := waitErr(t, done); !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(s.Snapshot().Items) != 0 {
		t.Fatal("failure must not show stale items")
	}
}

func TestNilPageIsFailure(t *testing.T) {
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		return nil, nil
	})
	s := NewStore[testItem](fetcher)

	if err := s.Fetch(context.Background()); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if !s.Snapshot().IsFailure() {
		t.Fatal("expected failure state")
	}
}

func TestSetFiltersMergesWithoutFetching(t *testing.T) {
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		t.Fatal("SetFilters must not fetch")
		return nil, nil
	})
	s := NewStore[testItem](fetcher)

	if err := s.SetFilters(map[string]string{"location": "Kyoto", "guests": "2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFilters(map[string]string{"category": "tea"}); err != nil {
		t.Fatal(err)
	}

	want := FilterSet{Location: "Kyoto", Category: "tea", Guests: "2"}
	if got := s.Snapshot().Filters; got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	err := s.SetFilters(map[string]string{"category": "sake", "colour": "red"})
	if !errors.Is(err, ErrUnknownFilterKey) {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	if got := s.Snapshot().Filters; got != want {
		t.Fatalf("rejected patch changed filters: %+v", got)
	}

	err = s.SetFilters(map[string]string{"minPrice": "cheap"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["minPrice"]; !ok {
		t.Fatalf("expected minPrice field error, got %v", verr.Fields)
	}
	if got := s.Snapshot().Filters; got != want {
		t.Fatalf("invalid patch changed filters: %+v", got)
	}
}

func TestApplyFiltersRejectsInvalid(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	err := s.ApplyFilters(context.Background(), FilterSet{Date: "18/10/2026"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	f.expectNoCall(t)
	if s.Snapshot().Outcome.State != StateIdle {
		t.Fatal("invalid filters must not start a fetch")
	}
}

func TestApplyFiltersDebounced(t *testing.T) {
	var mu sync.Mutex
	var seen []FilterSet
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		mu.Lock()
		seen = append(seen, filters)
		mu.Unlock()
		return pageOf(1, 1, 1, "hit"), nil
	})
	s := NewStore[testItem](fetcher, WithDebounce(20*time.Millisecond))
	defer s.Close()

	for _, q := range []string{"k", "ka", "kay", "kaya", "kayak"} {
		if err := s.ApplyFiltersDebounced(FilterSet{Query: q}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("expected one debounced fetch, got %d", len(seen))
	}
	if seen[0].Query != "kayak" {
		t.Fatalf("expected last input to win, got %q", seen[0].Query)
	}
}

func TestClearFiltersDropsPendingDebounce(t *testing.T) {
	var mu sync.Mutex
	var seen []FilterSet
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		mu.Lock()
		seen = append(seen, filters)
		mu.Unlock()
		return pageOf(1, 1, 1, "x"), nil
	})
	s := NewStore[testItem](fetcher, WithDebounce(30*time.Millisecond))
	defer s.Close()

	if err := s.ApplyFiltersDebounced(FilterSet{Query: "typing"}); err != nil {
		t.Fatal(err)
	}
	if !s.DebouncePending() {
		t.Fatal("expected pending debounced apply")
	}
	if err := s.ClearFilters(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || !seen[0].IsEmpty() {
		t.Fatalf("expected only the clear fetch, got %+v", seen)
	}
	if !s.Snapshot().Filters.IsEmpty() {
		t.Fatal("debounced apply fired after clear")
	}
}

func TestFlushDebounced(t *testing.T) {
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		return pageOf(1, 1, 1, filters.Query), nil
	})
	s := NewStore[testItem](fetcher, WithDebounce(time.Hour))
	defer s.Close()

	if err := s.ApplyFiltersDebounced(FilterSet{Query: "now"}); err != nil {
		t.Fatal(err)
	}
	if !s.FlushDebounced() {
		t.Fatal("expected flush to run pending apply")
	}
	if got := s.Snapshot().Keys(); !reflect.DeepEqual(got, []string{"now"}) {
		t.Fatalf("expected flushed result, got %v", got)
	}
}

func TestResetMakesInFlightStale(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	if err := s.SetFilters(map[string]string{"location": "Oslo"}); err != nil {
		t.Fatal(err)
	}
	done := goFetch(func() error { return s.Fetch(context.Background()) })
	call := f.next(t)

	s.Reset()
	call.reply <- reply{page: pageOf(1, 1, 1, "late")}
	if err := waitErr(t, done); !errors.Is(err, ErrStaleResponseDiscarded) {
		t.Fatalf("expected stale discard, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Outcome.State != StateIdle || !snap.Filters.IsEmpty() || len(snap.Items) != 0 {
		t.Fatalf("expected pristine store, got %+v", snap)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := NewStore[testItem](newGatedFetcher())
	s.Close()
	s.Close()

	ctx := context.Background()
	if err := s.Fetch(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Fetch: expected ErrStoreClosed, got %v", err)
	}
	if err := s.ClearFilters(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("ClearFilters: expected ErrStoreClosed, got %v", err)
	}
	if err := s.ApplyFiltersDebounced(FilterSet{}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("ApplyFiltersDebounced: expected ErrStoreClosed, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		return pageOf(1, 1, 1, "a"), nil
	})
	s := NewStore[testItem](fetcher)

	var n int32
	unsubscribe := s.Subscribe(func(Snapshot[testItem]) { atomic.AddInt32(&n, 1) })
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	unsubscribe()
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&n); got != 2 {
		t.Fatalf("expected 2 notifications before unsubscribe, got %d", got)
	}
}

type countingObserver struct {
	started, committed, discarded int32
}

func (o *countingObserver) FetchStarted() { atomic.AddInt32(&o.started, 1) }
func (o *countingObserver) FetchCommitted(State, time.Duration) {
	atomic.AddInt32(&o.committed, 1)
}
func (o *countingObserver) FetchDiscarded(time.Duration) { atomic.AddInt32(&o.discarded, 1) }

func TestObserverSeesDiscards(t *testing.T) {
	f := newGatedFetcher()
	obs := &countingObserver{}
	s := NewStore[testItem](f, WithObserver(obs), WithPageSize(24))

	errA := goFetch(func() error { return s.Fetch(context.Background()) })
	a := f.next(t)
	errB := goFetch(func() error { return s.Fetch(context.Background()) })
	b := f.next(t)
	if b.pageSize != 24 {
		t.Fatalf("expected page size 24, got %d", b.pageSize)
	}

	b.reply <- reply{page: pageOf(1, 1, 1, "b")}
	a.reply <- reply{page: pageOf(1, 1, 1, "a")}
	waitErr(t, errA)
	waitErr(t, errB)

	if obs.started != 2 || obs.committed != 1 || obs.discarded != 1 {
		t.Fatalf("unexpected observer counts %+v", obs)
	}
}

func TestSlowSubscriberEndsOnLatestSnapshot(t *testing.T) {
	f := newGatedFetcher()
	s := NewStore[testItem](f)

	stalled := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var last Snapshot[testItem]
	s.Subscribe(func(snap Snapshot[testItem]) {
		if snap.Outcome.State == StateSuccess && reflect.DeepEqual(snap.Keys(), []string{"old"}) {
			once.Do(func() {
				close(stalled)
				<-release
			})
		}
		mu.Lock()
		last = snap
		mu.Unlock()
	})

	errA := goFetch(func() error { return s.Fetch(context.Background()) })
	f.next(t).reply <- reply{page: pageOf(1, 1, 1, "old")}
	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never saw the first result")
	}

	errB := goFetch(func() error { return s.Fetch(context.Background()) })
	var callB *pendingCall
	select {
	case callB = <-f.calls:
		callB.reply <- reply{page: pageOf(1, 1, 1, "new")}
		time.Sleep(50 * time.Millisecond)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	if callB == nil {
		f.next(t).reply <- reply{page: pageOf(1, 1, 1, "new")}
	}

	if err := waitErr(t, errA); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if err := waitErr(t, errB); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	current := s.Snapshot()
	mu.Lock()
	defer mu.Unlock()
	if last.Outcome.Seq != current.Outcome.Seq || !reflect.DeepEqual(last.Keys(), current.Keys()) {
		t.Fatalf("subscriber ended on seq %d %v, store is at seq %d %v",
			last.Outcome.Seq, last.Keys(), current.Outcome.Seq, current.Keys())
	}
	if current.Outcome.Seq != 2 || !reflect.DeepEqual(current.Keys(), []string{"new"}) {
		t.Fatalf("unexpected store state seq=%d keys=%v", current.Outcome.Seq, current.Keys())
	}
}

func TestMergeFiltersDebouncedKeepsPendingKeys(t *testing.T) {
	var mu sync.Mutex
	var seen []FilterSet
	fetcher := FetcherFunc[testItem](func(ctx context.Context, filters FilterSet, page, pageSize int) (*Page[testItem], error) {
		mu.Lock()
		seen = append(seen, filters)
		mu.Unlock()
		return pageOf(1, 1, 1, "hit"), nil
	})
	s := NewStore[testItem](fetcher, WithDebounce(time.Hour))
	defer s.Close()

	if err := s.SetFilters(map[string]string{"guests": "2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.MergeFiltersDebounced(map[string]string{"location": "Lisbon"}); err != nil {
		t.Fatal(err)
	}
	if err := s.MergeFiltersDebounced(map[string]string{"category": "water"}); err != nil {
		t.Fatal(err)
	}
	if err := s.MergeFiltersDebounced(map[string]string{"shoeSize": "44"}); !errors.Is(err, ErrUnknownFilterKey) {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	want := FilterSet{Location: "Lisbon", Category: "water", Guests: "2"}
	pending, ok := s.PendingFilters()
	if !ok || pending != want {
		t.Fatalf("expected pending %+v, got %+v (ok=%v)", want, pending, ok)
	}
	if got := s.Snapshot().Filters; got != (FilterSet{Guests: "2"}) {
		t.Fatalf("active filters changed before the window closed: %+v", got)
	}

	if !s.FlushDebounced() {
		t.Fatal("expected flush to run pending apply")
	}
	if _, ok := s.PendingFilters(); ok {
		t.Fatal("pending filters survived the apply")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != want {
		t.Fatalf("expected one fetch with %+v, got %+v", want, seen)
	}
	if got := s.Snapshot().Filters; got != want {
		t.Fatalf("expected applied filters %+v, got %+v", want, got)
	}
}
