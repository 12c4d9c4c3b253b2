package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchLatest(ctx context.Context) (*Quote, error) {
	args := m.Called(ctx)
	if q := args.Get(0); q != nil {
		return q.(*Quote), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFetcher) Name() string { return "mock" }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []Snapshot
	loaded  *Snapshot
	loadErr error
	saveErr error
}

func (s *fakeStore) Load(context.Context) (*Snapshot, error) {
	return s.loaded, s.loadErr
}

func (s *fakeStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snap)
	return nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *fakeBus) Emit(_ context.Context, e eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *fakeBus) Register(string, eventbus.HandlerFunc) {}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func quoteAt(ts time.Time, rates map[string]float64) *Quote {
	return &Quote{Timestamp: ts, Rates: rates, Source: "mock"}
}

func newTestCache(t *testing.T, opts Options) (*RateCache, *MockFetcher, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: t0}
	fetcher := &MockFetcher{}
	opts.Now = clock.Now
	return NewRateCache(fetcher, opts), fetcher, clock
}

func TestRateCache_BaseCurrencyNeedsNoLookup(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})

	rate, err := cache.BaseRate(context.Background(), units.USD)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
	fetcher.AssertNotCalled(t, "FetchLatest", mock.Anything)
}

func TestRateCache_FreshTableServesWithoutFetching(t *testing.T) {
	cache, fetcher, clock := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"USD": 1, "EUR": 0.92, "GBP": 0.79}), nil).Once()

	ctx := context.Background()
	first, err := cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.92, first)

	clock.Advance(time.Hour)
	second, err := cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	gbp, err := cache.BaseRate(ctx, units.GBP)
	require.NoError(t, err)
	assert.Equal(t, 0.79, gbp)

	fetcher.AssertNumberOfCalls(t, "FetchLatest", 1)
	assert.False(t, cache.IsStale())
}

func TestRateCache_ExpiredTableRefreshesOnce(t *testing.T) {
	cache, fetcher, clock := newTestCache(t, Options{Expiration: 24 * time.Hour})
	later := t0.Add(25 * time.Hour)
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil).Once()
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(later, map[string]float64{"EUR": 0.95}), nil).Once()

	ctx := context.Background()
	rate, err := cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)

	clock.Advance(25 * time.Hour)
	assert.True(t, cache.IsStale())

	rate, err = cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.95, rate)
	assert.Equal(t, later, cache.LastRefreshed())

	rate, err = cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.95, rate)

	fetcher.AssertNumberOfCalls(t, "FetchLatest", 2)
}

func TestRateCache_StaleAtExactExpiration(t *testing.T) {
	cache, fetcher, clock := newTestCache(t, Options{Expiration: time.Hour})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil).Once()

	require.NoError(t, cache.Refresh(context.Background()))
	clock.Advance(time.Hour - time.Nanosecond)
	assert.False(t, cache.IsStale())
	clock.Advance(time.Nanosecond)
	assert.True(t, cache.IsStale())
}

func TestRateCache_EmptyCacheIsStale(t *testing.T) {
	cache, _, _ := newTestCache(t, Options{})
	assert.True(t, cache.IsStale())
	assert.True(t, cache.LastRefreshed().IsZero())
	assert.Empty(t, cache.Snapshot().Rates)
}

func TestRateCache_MissWhileFreshRefreshes(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil).Once()
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0.Add(time.Minute), map[string]float64{"EUR": 0.9, "JPY": 151.3}), nil).Once()

	ctx := context.Background()
	_, err := cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)

	rate, err := cache.BaseRate(ctx, units.JPY)
	require.NoError(t, err)
	assert.Equal(t, 151.3, rate)
	fetcher.AssertNumberOfCalls(t, "FetchLatest", 2)
}

func TestRateCache_RateNotFoundAfterRefresh(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil)

	_, err := cache.BaseRate(context.Background(), units.KWD)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateNotFound)
	assert.Equal(t, "No rate found for currency KWD", err.Error())
}

func TestRateCache_UnknownCodesAreIgnored(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9, "XAU": 0.0004, "BTC": 0.00001}), nil)

	require.NoError(t, cache.Refresh(context.Background()))
	snap := cache.Snapshot()
	assert.Equal(t, map[units.Currency]float64{units.EUR: 0.9}, snap.Rates)
}

func TestRateCache_UnusableRatesAreSkipped(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9, "JPY": 0, "GBP": -1}), nil)

	require.NoError(t, cache.Refresh(context.Background()))
	assert.Equal(t, map[units.Currency]float64{units.EUR: 0.9}, cache.Snapshot().Rates)
}

func TestRateCache_FailedRefreshKeepsPreviousTable(t *testing.T) {
	cache, fetcher, clock := newTestCache(t, Options{Expiration: time.Hour})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9, "GBP": 0.8}), nil).Once()
	malformed := NewAPIError(ErrInvalidRateFormat, "Invalid rate format for EUR")
	fetcher.On("FetchLatest", mock.Anything).Return(nil, malformed).Once()

	ctx := context.Background()
	require.NoError(t, cache.Refresh(ctx))
	before := cache.Snapshot()

	clock.Advance(2 * time.Hour)
	_, err := cache.BaseRate(ctx, units.EUR)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRateFormat)
	assert.True(t, IsAPIError(err))

	assert.Equal(t, before, cache.Snapshot())
	assert.True(t, cache.IsStale())
}

func TestRateCache_FailedRefreshIsRetried(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(nil, NewAPIError(ErrTransport, "Failed to fetch exchange rates: status 500")).Once()
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil).Once()

	ctx := context.Background()
	_, err := cache.BaseRate(ctx, units.EUR)
	assert.ErrorIs(t, err, ErrTransport)

	rate, err := cache.BaseRate(ctx, units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
	fetcher.AssertNumberOfCalls(t, "FetchLatest", 2)
}

func TestRateCache_MissingCredential(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(nil, NewAPIError(ErrMissingCredential, "OPENEXCHANGERATES_APP_ID is not set"))

	_, err := cache.BaseRate(context.Background(), units.EUR)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, "OPENEXCHANGERATES_APP_ID is not set", err.Error())
}

func TestRateCache_PlainFetchErrorBecomesTransportError(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).Return(nil, errors.New("connection refused"))

	err := cache.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRateCache_MissingTimestampUsesLocalClock(t *testing.T) {
	bus := &fakeBus{}
	cache, fetcher, clock := newTestCache(t, Options{Bus: bus})
	clock.Advance(time.Minute)
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(time.Time{}, map[string]float64{"EUR": 0.9}), nil)

	require.NoError(t, cache.Refresh(context.Background()))
	assert.Equal(t, t0.Add(time.Minute), cache.LastRefreshed())

	require.Len(t, bus.events, 1)
	evt := bus.events[0].(RatesRefreshed)
	assert.True(t, evt.LocalClock)
}

func TestRateCache_StrictTimestampRejectsRefresh(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{StrictTimestamp: true})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(time.Time{}, map[string]float64{"EUR": 0.9}), nil)

	err := cache.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	assert.Empty(t, cache.Snapshot().Rates)
	assert.True(t, cache.IsStale())
}

func TestRateCache_PersistsAndPublishesAfterRefresh(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{}
	cache, fetcher, _ := newTestCache(t, Options{Store: store, Bus: bus})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9, "JPY": 151.3}), nil)

	require.NoError(t, cache.Refresh(context.Background()))

	require.Len(t, store.saved, 1)
	assert.Equal(t, t0, store.saved[0].LastRefreshed)
	assert.Equal(t, map[units.Currency]float64{units.EUR: 0.9, units.JPY: 151.3}, store.saved[0].Rates)

	require.Len(t, bus.events, 1)
	evt, ok := bus.events[0].(RatesRefreshed)
	require.True(t, ok)
	assert.Equal(t, EventRatesRefreshed, evt.Type())
	assert.Equal(t, 2, evt.Count)
	assert.Equal(t, "mock", evt.Source)
	assert.Equal(t, t0, evt.Timestamp)
	assert.NotEmpty(t, evt.ID.String())
}

func TestRateCache_PersistenceFailureDoesNotFailLookup(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	cache, fetcher, _ := newTestCache(t, Options{Store: store})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil)

	rate, err := cache.BaseRate(context.Background(), units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
}

func TestRateCache_RestoreFreshSnapshot(t *testing.T) {
	store := &fakeStore{loaded: &Snapshot{
		Rates:         map[units.Currency]float64{units.EUR: 0.9, units.GBP: 0.8},
		LastRefreshed: t0.Add(-time.Hour),
	}}
	cache, fetcher, _ := newTestCache(t, Options{Store: store})

	assert.True(t, cache.Restore(context.Background()))
	assert.False(t, cache.IsStale())

	rate, err := cache.BaseRate(context.Background(), units.GBP)
	require.NoError(t, err)
	assert.Equal(t, 0.8, rate)
	fetcher.AssertNotCalled(t, "FetchLatest", mock.Anything)
}

func TestRateCache_RestoreStaleSnapshotRefreshesOnUse(t *testing.T) {
	store := &fakeStore{loaded: &Snapshot{
		Rates:         map[units.Currency]float64{units.EUR: 0.9},
		LastRefreshed: t0.Add(-8 * 24 * time.Hour),
	}}
	cache, fetcher, _ := newTestCache(t, Options{Store: store})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.91}), nil).Once()

	require.True(t, cache.Restore(context.Background()))
	assert.True(t, cache.IsStale())

	rate, err := cache.BaseRate(context.Background(), units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.91, rate)
}

func TestRateCache_RestoreFailureStartsEmpty(t *testing.T) {
	for name, store := range map[string]*fakeStore{
		"unreadable": {loadErr: errors.New("corrupt")},
		"absent":     {},
	} {
		t.Run(name, func(t *testing.T) {
			cache, _, _ := newTestCache(t, Options{Store: store})
			assert.False(t, cache.Restore(context.Background()))
			assert.True(t, cache.IsStale())
		})
	}
}

func TestRateCache_SyncAdoptsOnlyNewerSnapshots(t *testing.T) {
	store := &fakeStore{loaded: &Snapshot{
		Rates:         map[units.Currency]float64{units.EUR: 0.9},
		LastRefreshed: t0.Add(-time.Hour),
	}}
	cache, _, _ := newTestCache(t, Options{Store: store})
	require.True(t, cache.Restore(context.Background()))

	assert.False(t, cache.Sync(context.Background()), "same snapshot again")

	store.loaded = &Snapshot{
		Rates:         map[units.Currency]float64{units.EUR: 0.95},
		LastRefreshed: t0,
	}
	assert.True(t, cache.Sync(context.Background()))
	assert.Equal(t, t0, cache.LastRefreshed())
	rate, err := cache.BaseRate(context.Background(), units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.95, rate)

	store.loaded = &Snapshot{
		Rates:         map[units.Currency]float64{units.EUR: 0.5},
		LastRefreshed: t0.Add(-2 * time.Hour),
	}
	assert.False(t, cache.Sync(context.Background()))
	assert.Equal(t, 0.95, cache.Snapshot().Rates[units.EUR])
}

func TestRateCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	release := make(chan struct{})
	fetcher.On("FetchLatest", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9, "GBP": 0.8}), nil)

	const callers = 32
	var wg sync.WaitGroup
	results := make([]float64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur := units.EUR
			if i%2 == 1 {
				cur = units.GBP
			}
			results[i], errs[i] = cache.BaseRate(context.Background(), cur)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if i%2 == 1 {
			assert.Equal(t, 0.8, results[i])
		} else {
			assert.Equal(t, 0.9, results[i])
		}
	}
	fetcher.AssertNumberOfCalls(t, "FetchLatest", 1)
}

func TestRateCache_CancelledCallerDoesNotAbortRefresh(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	release := make(chan struct{})
	fetcher.On("FetchLatest", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.BaseRate(ctx, units.EUR)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool { return !cache.IsStale() }, time.Second, 5*time.Millisecond)

	rate, err := cache.BaseRate(context.Background(), units.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
	fetcher.AssertNumberOfCalls(t, "FetchLatest", 1)
}

func TestRateCache_DueForRefresh(t *testing.T) {
	cache, fetcher, clock := newTestCache(t, Options{Expiration: 10 * time.Hour})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil).Once()

	assert.True(t, cache.DueForRefresh())
	require.NoError(t, cache.Refresh(context.Background()))
	assert.False(t, cache.DueForRefresh())

	clock.Advance(7 * time.Hour)
	assert.False(t, cache.DueForRefresh())
	clock.Advance(time.Hour)
	assert.True(t, cache.DueForRefresh())
	assert.False(t, cache.IsStale())
}

func TestRateCache_StartAutoRefresh(t *testing.T) {
	cache, fetcher, _ := newTestCache(t, Options{})
	fetcher.On("FetchLatest", mock.Anything).
		Return(quoteAt(t0, map[string]float64{"EUR": 0.9}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := cache.StartAutoRefresh(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return !cache.IsStale() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auto refresh did not stop")
	}
	// fresh table: later ticks must not fetch again
	fetcher.AssertNumberOfCalls(t, "FetchLatest", 1)
}
