package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/almatkai/woolet-sub004/internal/cache"
	"github.com/almatkai/woolet-sub004/internal/logger"
	"github.com/almatkai/woolet-sub004/internal/model"
)

// ErrInvalidRange is returned when a chart range token is not recognized.
var ErrInvalidRange = errors.New("invalid range")

// staleAfter is the age beyond which a quote's price date is flagged stale.
const staleAfter = 3 * 24 * time.Hour

// PortfolioRepo defines the portfolio data the analytics engine reads.
type PortfolioRepo interface {
	Holdings(ctx context.Context, userID int64) ([]model.Holding, error)
	Transactions(ctx context.Context, userID int64, symbol string) ([]model.Transaction, error)
	CashBalances(ctx context.Context, userID int64) (map[string]float64, error)
}

// PriceProvider is the slice of the price aggregator the analytics
// engine depends on.
type PriceProvider interface {
	GetPriceRange(ctx context.Context, req PriceRangeRequest) ([]model.PriceBar, error)
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
}

// AnalyticsService computes portfolio valuations, value-over-time charts
// and benchmark comparisons on top of the price aggregator.
type AnalyticsService struct {
	repo   PortfolioRepo
	prices PriceProvider
	cache  *cache.Cache
	ttl    TTLs

	now func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(repo PortfolioRepo, prices PriceProvider, c *cache.Cache, ttl TTLs) *AnalyticsService {
	return &AnalyticsService{
		repo:   repo,
		prices: prices,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
	}
}

// GetSummary values every open holding at its latest quote and folds in
// realized P/L and cash balances.
func (s *AnalyticsService) GetSummary(ctx context.Context, userID int64) (model.PortfolioSummary, error) {
	key := fmt.Sprintf("portfolio:%d:summary", userID)
	return cache.GetOrFetch(ctx, s.cache, key, s.ttl.PortfolioSummary, func(ctx context.Context) (model.PortfolioSummary, error) {
		return s.buildSummary(ctx, userID)
	})
}

func (s *AnalyticsService) buildSummary(ctx context.Context, userID int64) (model.PortfolioSummary, error) {
	holdings, err := s.repo.Holdings(ctx, userID)
	if err != nil {
		return model.PortfolioSummary{}, fmt.Errorf("loading holdings: %w", err)
	}

	summary := model.PortfolioSummary{
		Holdings:       make([]model.HoldingSummary, 0, len(holdings)),
		CashByCurrency: map[string]float64{},
	}

	for _, h := range holdings {
		quote, err := s.prices.GetQuote(ctx, h.Symbol)
		if err != nil {
			return model.PortfolioSummary{}, fmt.Errorf("quoting %s: %w", h.Symbol, err)
		}

		txs, err := s.repo.Transactions(ctx, userID, h.Symbol)
		if err != nil {
			return model.PortfolioSummary{}, fmt.Errorf("loading transactions for %s: %w", h.Symbol, err)
		}

		hs := model.HoldingSummary{
			Symbol:       h.Symbol,
			Name:         h.Name,
			Quantity:     h.Quantity,
			AvgCost:      h.AvgCost,
			CurrentPrice: quote.Price,
			PriceDate:    quote.Date,
			PriceStale:   s.priceStale(quote.Date),
			CurrentValue: h.Quantity * quote.Price,
			Invested:     h.Quantity * h.AvgCost,
			RealizedPL:   realizedPL(h.Symbol, txs),
			Currency:     h.Currency,
		}
		hs.UnrealizedPL = hs.CurrentValue - hs.Invested
		if hs.Invested != 0 {
			hs.UnrealizedPLPct = hs.UnrealizedPL / hs.Invested * 100
		}

		summary.Holdings = append(summary.Holdings, hs)
		summary.TotalInvested += hs.Invested
		summary.TotalCurrentValue += hs.CurrentValue
		summary.TotalRealizedPL += hs.RealizedPL
	}

	summary.TotalUnrealizedPL = summary.TotalCurrentValue - summary.TotalInvested
	if summary.TotalInvested != 0 {
		summary.TotalUnrealizedPct = summary.TotalUnrealizedPL / summary.TotalInvested * 100
	}

	cash, err := s.repo.CashBalances(ctx, userID)
	if err != nil {
		return model.PortfolioSummary{}, fmt.Errorf("loading cash balances: %w", err)
	}
	summary.CashByCurrency = cash
	for _, amount := range cash {
		summary.TotalCash += amount
	}
	summary.TotalPortfolioValue = summary.TotalCurrentValue + summary.TotalCash
	if summary.TotalPortfolioValue != 0 {
		summary.CashAllocationPct = summary.TotalCash / summary.TotalPortfolioValue * 100
	}

	return summary, nil
}

func (s *AnalyticsService) priceStale(date string) bool {
	if date == "" {
		return true
	}
	t, err := model.ParseDate(date)
	if err != nil {
		return true
	}
	return s.now().Sub(t) > staleAfter
}

// fifoLot is one open purchase lot during FIFO matching.
type fifoLot struct {
	quantity float64
	price    float64
}

// realizedPL matches sells against buys first-in first-out. A sell that
// exceeds the quantity bought so far consumes the remainder at zero cost
// and logs a warning: the books are inconsistent but valuation proceeds.
func realizedPL(symbol string, txs []model.Transaction) float64 {
	var lots []fifoLot
	var realized float64

	for _, tx := range txs {
		switch tx.Type {
		case model.TransactionBuy:
			lots = append(lots, fifoLot{quantity: tx.Quantity, price: tx.Price})
		case model.TransactionSell:
			remaining := tx.Quantity
			var costBasis float64
			for remaining > 0 && len(lots) > 0 {
				lot := &lots[0]
				matched := remaining
				if lot.quantity < matched {
					matched = lot.quantity
				}
				costBasis += matched * lot.price
				lot.quantity -= matched
				remaining -= matched
				if lot.quantity == 0 {
					lots = lots[1:]
				}
			}
			if remaining > 0 {
				logger.GetLogger().WithField("symbol", symbol).WithField("excess_quantity", remaining).
					Warn("Sell exceeds bought quantity, excess carries zero cost basis")
			}
			realized += tx.Quantity*tx.Price - costBasis
		}
	}

	return realized
}

// GetChart builds the portfolio value time series over the given range.
func (s *AnalyticsService) GetChart(ctx context.Context, userID int64, rng string) ([]model.ChartPoint, error) {
	start, err := s.rangeStart(rng)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("portfolio:%d:chart:%s", userID, rng)
	return cache.GetOrFetch(ctx, s.cache, key, s.ttl.PortfolioChart, func(ctx context.Context) ([]model.ChartPoint, error) {
		return s.buildChart(ctx, userID, start)
	})
}

func (s *AnalyticsService) buildChart(ctx context.Context, userID int64, start string) ([]model.ChartPoint, error) {
	holdings, err := s.repo.Holdings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading holdings: %w", err)
	}
	if len(holdings) == 0 {
		return []model.ChartPoint{}, nil
	}

	// One history per holding, fetched concurrently. The aggregator's
	// rate gate serializes any provider calls underneath.
	var mu sync.Mutex
	histories := make(map[string][]model.PriceBar, len(holdings))

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range holdings {
		h := h
		g.Go(func() error {
			bars, err := s.prices.GetPriceRange(gctx, PriceRangeRequest{
				StockID: h.StockID,
				Symbol:  h.Symbol,
				Start:   start,
			})
			if err != nil {
				return fmt.Errorf("history for %s: %w", h.Symbol, err)
			}
			mu.Lock()
			histories[h.Symbol] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Union of trading dates across all holdings.
	dateSet := map[string]struct{}{}
	closes := make(map[string]map[string]float64, len(holdings))
	for symbol, bars := range histories {
		bySymbol := make(map[string]float64, len(bars))
		for _, bar := range bars {
			dateSet[bar.Date] = struct{}{}
			bySymbol[bar.Date] = bar.Close
		}
		closes[symbol] = bySymbol
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	// Value each date with the last known close carried forward across
	// gaps. A holding contributes nothing before its first known price.
	lastClose := make(map[string]float64, len(holdings))
	points := make([]model.ChartPoint, 0, len(dates))
	for _, date := range dates {
		var value float64
		for _, h := range holdings {
			if close, ok := closes[h.Symbol][date]; ok {
				lastClose[h.Symbol] = close
			}
			value += h.Quantity * lastClose[h.Symbol]
		}
		points = append(points, model.ChartPoint{Date: date, Value: value})
	}

	return points, nil
}

// GetBenchmark compares portfolio growth against a benchmark instrument
// over the dates both series share.
func (s *AnalyticsService) GetBenchmark(ctx context.Context, userID int64, benchmark, rng string) (model.BenchmarkComparison, error) {
	start, err := s.rangeStart(rng)
	if err != nil {
		return model.BenchmarkComparison{}, err
	}

	key := fmt.Sprintf("portfolio:%d:benchmark:%s:%s", userID, benchmark, rng)
	return cache.GetOrFetch(ctx, s.cache, key, s.ttl.PortfolioBenchmark, func(ctx context.Context) (model.BenchmarkComparison, error) {
		return s.buildBenchmark(ctx, userID, benchmark, rng, start)
	})
}

func (s *AnalyticsService) buildBenchmark(ctx context.Context, userID int64, benchmark, rng, start string) (model.BenchmarkComparison, error) {
	result := model.BenchmarkComparison{
		BenchmarkSymbol: benchmark,
		Portfolio:       emptySeries(),
		Benchmark:       emptySeries(),
	}

	chart, err := s.GetChart(ctx, userID, rng)
	if err != nil {
		return model.BenchmarkComparison{}, err
	}
	if len(chart) == 0 {
		return result, nil
	}

	benchBars, err := s.prices.GetPriceRange(ctx, PriceRangeRequest{Symbol: benchmark, Start: start})
	if err != nil {
		return model.BenchmarkComparison{}, err
	}

	benchClose := make(map[string]float64, len(benchBars))
	for _, bar := range benchBars {
		benchClose[bar.Date] = bar.Close
	}

	// Restrict both series to the dates they share; the chart is already
	// sorted ascending.
	var shared []model.ChartPoint
	for _, p := range chart {
		if _, ok := benchClose[p.Date]; ok {
			shared = append(shared, p)
		}
	}
	if len(shared) == 0 {
		return result, nil
	}

	p0 := shared[0].Value
	b0 := benchClose[shared[0].Date]
	if p0 == 0 || b0 == 0 {
		return result, nil
	}

	portfolio := model.SeriesComparison{
		StartValue: p0,
		Series:     make([]model.NormalizedPoint, 0, len(shared)),
	}
	bench := model.SeriesComparison{
		StartValue: b0,
		Series:     make([]model.NormalizedPoint, 0, len(shared)),
	}
	for _, p := range shared {
		bv := benchClose[p.Date]
		portfolio.Series = append(portfolio.Series, model.NormalizedPoint{
			Date:    p.Date,
			Percent: (p.Value - p0) / p0 * 100,
		})
		bench.Series = append(bench.Series, model.NormalizedPoint{
			Date:    p.Date,
			Percent: (bv - b0) / b0 * 100,
		})
		portfolio.EndValue = p.Value
		bench.EndValue = bv
	}

	portfolio.AbsoluteGain = portfolio.EndValue - portfolio.StartValue
	portfolio.PercentReturn = portfolio.Series[len(portfolio.Series)-1].Percent
	bench.AbsoluteGain = bench.EndValue - bench.StartValue
	bench.PercentReturn = bench.Series[len(bench.Series)-1].Percent

	result.Portfolio = portfolio
	result.Benchmark = bench
	return result, nil
}

func emptySeries() model.SeriesComparison {
	return model.SeriesComparison{Series: []model.NormalizedPoint{}}
}

// rangeStart maps a range token to its window start date; ALL means open.
func (s *AnalyticsService) rangeStart(rng string) (string, error) {
	now := s.now()
	switch rng {
	case "1M":
		return now.AddDate(0, -1, 0).Format(model.DateLayout), nil
	case "3M":
		return now.AddDate(0, -3, 0).Format(model.DateLayout), nil
	case "6M":
		return now.AddDate(0, -6, 0).Format(model.DateLayout), nil
	case "1Y":
		return now.AddDate(-1, 0, 0).Format(model.DateLayout), nil
	case "5Y":
		return now.AddDate(-5, 0, 0).Format(model.DateLayout), nil
	case "ALL", "":
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRange, rng)
	}
}
