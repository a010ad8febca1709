package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almatkai/woolet-sub004/internal/cache"
	"github.com/almatkai/woolet-sub004/internal/client/twelvedata"
	"github.com/almatkai/woolet-sub004/internal/model"
	"github.com/almatkai/woolet-sub004/internal/store"
)

type fakeClient struct {
	mu              sync.Mutex
	timeSeriesCalls int
	quoteCalls      int
	searchCalls     int
	eodCalls        int
	bars            []model.PriceBar
	quote           model.Quote
	matches         []model.SymbolMatch
	eod             twelvedata.EODPrice
	err             error
}

func (f *fakeClient) TimeSeries(ctx context.Context, symbol, startDate, endDate string, outputSize int) ([]model.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeSeriesCalls++
	return f.bars, f.err
}

func (f *fakeClient) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	return f.quote, f.err
}

func (f *fakeClient) EODClose(ctx context.Context, symbol, date string) (twelvedata.EODPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eodCalls++
	return f.eod, f.err
}

func (f *fakeClient) SearchSymbols(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.matches, f.err
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeSeriesCalls
}

type fakeBarStore struct {
	mu       sync.Mutex
	bars     []model.PriceBar
	getErr   error
	upserted [][]model.PriceBar
	count    int
}

func (f *fakeBarStore) GetRange(ctx context.Context, stockID int64, start, end string) ([]model.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bars, f.getErr
}

func (f *fakeBarStore) UpsertRange(ctx context.Context, stockID int64, bars []model.PriceBar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, bars)
	return nil
}

func (f *fakeBarStore) Count(ctx context.Context, stockID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeBarStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserted)
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	return cache.New(cache.NewMemoryStore(), cache.Options{Capacity: 100, BaseTTL: time.Hour})
}

func newPriceService(t *testing.T, client *fakeClient, store *fakeBarStore) *PriceService {
	t.Helper()
	svc := NewPriceService(client, store, nil, newTestCache(t), PriceServiceOptions{
		TTL: TTLs{
			Search:       time.Hour,
			Quote:        time.Hour,
			Prices:       time.Hour,
			PricesRecent: time.Hour,
			EOD:          time.Hour,
		},
	})
	return svc
}

func day(now time.Time, offset int) string {
	return now.AddDate(0, 0, offset).Format(model.DateLayout)
}

func TestGetPriceRange_StoreSufficientSkipsProvider(t *testing.T) {
	now := time.Now()
	client := &fakeClient{}
	store := &fakeBarStore{bars: []model.PriceBar{
		{Date: day(now, -1), Close: 10},
		{Date: day(now, 0), Close: 11},
	}}
	svc := newPriceService(t, client, store)

	bars, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{
		StockID: 1,
		Symbol:  "AAPL",
		Start:   day(now, -5),
	})

	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 0, client.calls())
}

func TestGetPriceRange_StoreWithinToleranceSkipsProvider(t *testing.T) {
	now := time.Now()
	client := &fakeClient{}
	// Newest stored bar trails the requested end by two days, inside the
	// default three-day tolerance.
	store := &fakeBarStore{bars: []model.PriceBar{
		{Date: day(now, -12), Close: 10},
	}}
	svc := newPriceService(t, client, store)

	_, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{
		StockID: 1,
		Symbol:  "AAPL",
		Start:   day(now, -30),
		End:     day(now, -10),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, client.calls())
}

func TestGetPriceRange_StoreInsufficientFallsThrough(t *testing.T) {
	now := time.Now()
	fetched := []model.PriceBar{
		{Date: day(now, -1), Close: 20},
		{Date: day(now, 0), Close: 21},
	}
	client := &fakeClient{bars: fetched}
	store := &fakeBarStore{bars: []model.PriceBar{
		{Date: day(now, -30), Close: 10},
	}}
	svc := newPriceService(t, client, store)

	bars, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{
		StockID: 1,
		Symbol:  "AAPL",
		Start:   day(now, -30),
	})

	require.NoError(t, err)
	assert.Equal(t, fetched, bars)
	assert.Equal(t, 1, client.calls())

	// Write-back runs off the request path.
	assert.Eventually(t, func() bool {
		return store.upsertCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGetPriceRange_EmptyStoreUsesProvider(t *testing.T) {
	now := time.Now()
	client := &fakeClient{bars: []model.PriceBar{{Date: day(now, 0), Close: 5}}}
	store := &fakeBarStore{}
	svc := newPriceService(t, client, store)

	bars, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{
		StockID: 1,
		Symbol:  "AAPL",
	})

	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 1, client.calls())
}

func TestGetPriceRange_SecondCallServedFromCache(t *testing.T) {
	now := time.Now()
	client := &fakeClient{bars: []model.PriceBar{{Date: day(now, 0), Close: 5}}}
	svc := newPriceService(t, client, &fakeBarStore{})

	req := PriceRangeRequest{Symbol: "SAP", Start: day(now, -30)}
	_, err := svc.GetPriceRange(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.GetPriceRange(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls())
}

func TestGetPriceRange_ProviderErrorPropagates(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	svc := newPriceService(t, client, &fakeBarStore{})

	_, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{Symbol: "AAPL"})

	assert.Error(t, err)
}

func TestRangeTTL_RecentWindowShortensTTL(t *testing.T) {
	svc := newPriceService(t, &fakeClient{}, &fakeBarStore{})
	svc.ttl.Prices = 24 * time.Hour
	svc.ttl.PricesRecent = 4 * time.Hour
	now := time.Now()

	assert.Equal(t, 4*time.Hour, svc.rangeTTL(day(now, -2)))
	assert.Equal(t, 24*time.Hour, svc.rangeTTL(day(now, -30)))
	assert.Equal(t, 24*time.Hour, svc.rangeTTL(""))
}

func TestGetQuote_CachedAndTagged(t *testing.T) {
	client := &fakeClient{quote: model.Quote{Symbol: "AAPL", Price: 190.5}}
	c := newTestCache(t)
	svc := NewPriceService(client, &fakeBarStore{}, nil, c, PriceServiceOptions{
		TTL: TTLs{Quote: time.Hour},
	})

	q1, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	q2, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, q1, q2)
	assert.Equal(t, 1, client.quoteCalls)
	assert.Contains(t, c.RefreshQueue(), "AAPL")
}

func TestSearch_Cached(t *testing.T) {
	client := &fakeClient{matches: []model.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc"}}}
	svc := newPriceService(t, client, &fakeBarStore{})

	_, err := svc.Search(context.Background(), "apple")
	require.NoError(t, err)
	matches, err := svc.Search(context.Background(), "apple")
	require.NoError(t, err)

	assert.Len(t, matches, 1)
	assert.Equal(t, 1, client.searchCalls)
}

func TestGetEODClose_Cached(t *testing.T) {
	client := &fakeClient{eod: twelvedata.EODPrice{Symbol: "AAPL", Date: "2024-03-01", Close: 180.25}}
	svc := newPriceService(t, client, &fakeBarStore{})

	_, err := svc.GetEODClose(context.Background(), "AAPL", "2024-03-01")
	require.NoError(t, err)
	eod, err := svc.GetEODClose(context.Background(), "AAPL", "2024-03-01")
	require.NoError(t, err)

	assert.Equal(t, 180.25, eod.Close)
	assert.Equal(t, 1, client.eodCalls)
}

type fakeResolver struct {
	stocks map[int64]model.Holding
}

func (f *fakeResolver) Stock(ctx context.Context, stockID int64) (model.Holding, error) {
	h, ok := f.stocks[stockID]
	if !ok {
		return model.Holding{}, store.ErrStockNotFound
	}
	return h, nil
}

func TestGetPriceRange_ResolvesSymbolFromStockID(t *testing.T) {
	now := time.Now()
	client := &fakeClient{bars: []model.PriceBar{{Date: day(now, 0), Close: 5}}}
	svc := NewPriceService(client, &fakeBarStore{}, &fakeResolver{
		stocks: map[int64]model.Holding{3: {StockID: 3, Symbol: "SAP"}},
	}, newTestCache(t), PriceServiceOptions{TTL: TTLs{Prices: time.Hour}})

	bars, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{StockID: 3})

	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestGetPriceRange_UnknownStockID(t *testing.T) {
	svc := NewPriceService(&fakeClient{}, &fakeBarStore{}, &fakeResolver{}, newTestCache(t), PriceServiceOptions{})

	_, err := svc.GetPriceRange(context.Background(), PriceRangeRequest{StockID: 99})

	assert.ErrorIs(t, err, store.ErrStockNotFound)
}

func TestNeedsBackfill(t *testing.T) {
	svc := newPriceService(t, &fakeClient{}, &fakeBarStore{count: 0})
	needs, err := svc.NeedsBackfill(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, needs)

	svc = newPriceService(t, &fakeClient{}, &fakeBarStore{count: 250})
	needs, err = svc.NeedsBackfill(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, needs)
}
