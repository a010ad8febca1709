package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/almatkai/woolet-sub004/internal/cache"
	"github.com/almatkai/woolet-sub004/internal/client/twelvedata"
	"github.com/almatkai/woolet-sub004/internal/logger"
	"github.com/almatkai/woolet-sub004/internal/model"
)

// MarketDataClient defines the interface for the market data provider
type MarketDataClient interface {
	TimeSeries(ctx context.Context, symbol, startDate, endDate string, outputSize int) ([]model.PriceBar, error)
	Quote(ctx context.Context, symbol string) (model.Quote, error)
	EODClose(ctx context.Context, symbol, date string) (twelvedata.EODPrice, error)
	SearchSymbols(ctx context.Context, query string) ([]model.SymbolMatch, error)
}

// BarStore defines the durable price store operations the aggregator uses
type BarStore interface {
	GetRange(ctx context.Context, stockID int64, start, end string) ([]model.PriceBar, error)
	UpsertRange(ctx context.Context, stockID int64, bars []model.PriceBar) error
	Count(ctx context.Context, stockID int64) (int, error)
}

// StockResolver maps internal stock ids to their instrument rows.
type StockResolver interface {
	Stock(ctx context.Context, stockID int64) (model.Holding, error)
}

// TTLs is the per-kind cache TTL table.
type TTLs struct {
	Search             time.Duration
	Quote              time.Duration
	Prices             time.Duration
	PricesRecent       time.Duration
	EOD                time.Duration
	PortfolioSummary   time.Duration
	PortfolioChart     time.Duration
	PortfolioBenchmark time.Duration
}

// PriceRangeRequest asks for daily bars between Start and End (inclusive
// calendar days; empty means open). StockID, when known, unlocks the
// durable-store tier; Symbol is the provider ticker.
type PriceRangeRequest struct {
	StockID int64
	Symbol  string
	Start   string
	End     string
}

// PriceService answers price queries through a three-tier lookup:
// durable store when its data is sufficient, then the cache layer, then
// the rate-limited provider. Freshly fetched bars are written back to
// the durable store off the request path.
type PriceService struct {
	client MarketDataClient
	store  BarStore
	stocks StockResolver
	cache  *cache.Cache
	ttl    TTLs

	// staleTolerance is how far the durable store may trail the requested
	// end date and still answer alone (weekends, holidays, settlement lag).
	staleTolerance time.Duration
	// recentWindow marks query windows starting inside it as revisable,
	// which shortens their cache TTL.
	recentWindow time.Duration

	now func() time.Time
}

// PriceServiceOptions configures a PriceService.
type PriceServiceOptions struct {
	TTL                TTLs
	StaleToleranceDays int
	RecentWindowDays   int
}

// NewPriceService creates a new price aggregation service
func NewPriceService(client MarketDataClient, store BarStore, stocks StockResolver, c *cache.Cache, opts PriceServiceOptions) *PriceService {
	if opts.StaleToleranceDays <= 0 {
		opts.StaleToleranceDays = 3
	}
	if opts.RecentWindowDays <= 0 {
		opts.RecentWindowDays = 7
	}
	return &PriceService{
		client:         client,
		store:          store,
		stocks:         stocks,
		cache:          c,
		ttl:            opts.TTL,
		staleTolerance: time.Duration(opts.StaleToleranceDays) * 24 * time.Hour,
		recentWindow:   time.Duration(opts.RecentWindowDays) * 24 * time.Hour,
		now:            time.Now,
	}
}

// GetPriceRange returns daily bars for the requested window.
func (s *PriceService) GetPriceRange(ctx context.Context, req PriceRangeRequest) ([]model.PriceBar, error) {
	if req.Symbol == "" && req.StockID != 0 && s.stocks != nil {
		stock, err := s.stocks.Stock(ctx, req.StockID)
		if err != nil {
			return nil, fmt.Errorf("resolving stock %d: %w", req.StockID, err)
		}
		req.Symbol = stock.Symbol
	}

	// Tier 1: the durable store, free and local.
	if req.StockID != 0 {
		bars, err := s.store.GetRange(ctx, req.StockID, req.Start, req.End)
		if err != nil {
			logger.GetLogger().WithField("stock_id", req.StockID).WithField("error", err.Error()).
				Warn("Durable store range query failed, falling through to cache")
		} else if s.sufficient(bars, req.End) {
			return bars, nil
		}
	}

	// Tier 2 wraps tier 3: the cache layer's fetch function is the
	// rate-limited provider call.
	key := s.rangeKey(req)
	return cache.GetOrFetchTagged(ctx, s.cache, key, s.rangeTTL(req.Start), req.Symbol, func(ctx context.Context) ([]model.PriceBar, error) {
		fetched, err := s.client.TimeSeries(ctx, req.Symbol, req.Start, req.End, 0)
		if err != nil {
			return nil, err
		}
		if req.StockID != 0 && len(fetched) > 0 {
			s.persistAsync(req.StockID, req.Symbol, fetched)
		}
		return fetched, nil
	})
}

// sufficient reports whether stored bars can answer the request alone:
// the newest stored date reaches the requested end, or today, or trails
// the requested end by no more than the stale tolerance.
func (s *PriceService) sufficient(bars []model.PriceBar, end string) bool {
	if len(bars) == 0 {
		return false
	}
	newest := bars[len(bars)-1].Date
	today := s.now().Format(model.DateLayout)
	if end == "" {
		end = today
	}

	if newest >= end || newest >= today {
		return true
	}

	newestT, err := model.ParseDate(newest)
	if err != nil {
		return false
	}
	endT, err := model.ParseDate(end)
	if err != nil {
		return false
	}
	return endT.Sub(newestT) <= s.staleTolerance
}

func (s *PriceService) rangeKey(req PriceRangeRequest) string {
	if req.StockID != 0 {
		return fmt.Sprintf("price-range:%d:%s:%s", req.StockID, req.Start, req.End)
	}
	start, end := req.Start, req.End
	if start == "" {
		start = "ALL"
	}
	if end == "" {
		end = "LATEST"
	}
	return fmt.Sprintf("prices:%s:%s:%s:%s", req.Symbol, start, end, strconv.Itoa(twelvedata.MaxOutputSize))
}

// rangeTTL picks the short TTL for windows starting within the recent
// window, since the provider may still revise those bars.
func (s *PriceService) rangeTTL(start string) time.Duration {
	if start == "" {
		return s.ttl.Prices
	}
	startT, err := model.ParseDate(start)
	if err != nil {
		return s.ttl.Prices
	}
	if s.now().Sub(startT) <= s.recentWindow {
		return s.ttl.PricesRecent
	}
	return s.ttl.Prices
}

// persistAsync writes fetched bars back to the durable store without
// holding up the caller. Failure is logged, never surfaced: the caller
// already has the data.
func (s *PriceService) persistAsync(stockID int64, symbol string, bars []model.PriceBar) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.store.UpsertRange(ctx, stockID, bars); err != nil {
			logger.LogPersistenceFailure(symbol, len(bars), err)
		}
	}()
}

// GetQuote returns the latest quote for symbol, cached for a day. The
// symbol is tagged into the refresh worklist.
func (s *PriceService) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	key := "quote:" + symbol
	return cache.GetOrFetchTagged(ctx, s.cache, key, s.ttl.Quote, symbol, func(ctx context.Context) (model.Quote, error) {
		return s.client.Quote(ctx, symbol)
	})
}

// GetEODClose returns the end-of-day close for symbol on date. Historical
// closes never change, so the TTL is long.
func (s *PriceService) GetEODClose(ctx context.Context, symbol, date string) (twelvedata.EODPrice, error) {
	key := fmt.Sprintf("eod:%s:%s", symbol, date)
	return cache.GetOrFetch(ctx, s.cache, key, s.ttl.EOD, func(ctx context.Context) (twelvedata.EODPrice, error) {
		return s.client.EODClose(ctx, symbol, date)
	})
}

// RefreshQuote drops the cached quote for symbol and fetches a new one.
// Used by the background refresh job; the symbol stays on the worklist.
func (s *PriceService) RefreshQuote(ctx context.Context, symbol string) error {
	if err := s.cache.Invalidate(ctx, "quote:"+symbol); err != nil {
		logger.GetLogger().WithField("symbol", symbol).WithField("error", err.Error()).
			Warn("Failed to invalidate quote before refresh")
	}
	_, err := s.GetQuote(ctx, symbol)
	return err
}

// Search looks up instruments matching the query, cached for a day.
func (s *PriceService) Search(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	key := "search:" + query
	return cache.GetOrFetch(ctx, s.cache, key, s.ttl.Search, func(ctx context.Context) ([]model.SymbolMatch, error) {
		return s.client.SearchSymbols(ctx, query)
	})
}

// NeedsBackfill reports whether a stock has no stored history yet.
func (s *PriceService) NeedsBackfill(ctx context.Context, stockID int64) (bool, error) {
	count, err := s.store.Count(ctx, stockID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
