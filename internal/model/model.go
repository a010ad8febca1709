package model

import "time"

// DateLayout is the calendar-day format used across the price pipeline.
// Bars are keyed by exchange-local calendar day, never by timestamp.
const DateLayout = "2006-01-02"

// PriceBar is one daily OHLCV bar for one instrument.
type PriceBar struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        *int64  `json:"volume,omitempty"`
}

// ParseDate parses a calendar-day string in DateLayout.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Quote is a point-in-time quote for one instrument.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
	Date          string  `json:"date"`
}

// SymbolMatch is one result of a symbol search.
type SymbolMatch struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Exchange   string `json:"exchange"`
	Type       string `json:"type"`
	Currency   string `json:"currency"`
	Country    string `json:"country,omitempty"`
	MICCode    string `json:"mic_code,omitempty"`
	FigiCode   string `json:"figi_code,omitempty"`
	ExchangeTZ string `json:"exchange_timezone,omitempty"`
}

// Holding is one position in a user's portfolio. Mutated by transaction
// processing elsewhere; read-only from the valuation engine's perspective.
type Holding struct {
	StockID  int64   `json:"stock_id"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name,omitempty"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"average_cost_basis"`
	Currency string  `json:"currency"`
}

// TransactionType is the side of a portfolio transaction.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// Transaction is one buy or sell of an instrument.
type Transaction struct {
	ID       int64           `json:"id"`
	StockID  int64           `json:"stock_id"`
	Symbol   string          `json:"symbol"`
	Type     TransactionType `json:"type"`
	Quantity float64         `json:"quantity"`
	Price    float64         `json:"price"`
	Date     string          `json:"date"`
}

// HoldingSummary is the valuation of a single holding.
type HoldingSummary struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name,omitempty"`
	Quantity        float64 `json:"quantity"`
	AvgCost         float64 `json:"average_cost_basis"`
	CurrentPrice    float64 `json:"current_price"`
	PriceDate       string  `json:"price_date"`
	PriceStale      bool    `json:"price_stale"`
	CurrentValue    float64 `json:"current_value"`
	Invested        float64 `json:"invested"`
	UnrealizedPL    float64 `json:"unrealized_pl"`
	UnrealizedPLPct float64 `json:"unrealized_pl_percent"`
	RealizedPL      float64 `json:"realized_pl"`
	Currency        string  `json:"currency"`
}

// PortfolioSummary aggregates holding valuations and cash.
type PortfolioSummary struct {
	Holdings            []HoldingSummary   `json:"holdings"`
	TotalInvested       float64            `json:"total_invested"`
	TotalCurrentValue   float64            `json:"total_current_value"`
	TotalUnrealizedPL   float64            `json:"total_unrealized_pl"`
	TotalUnrealizedPct  float64            `json:"total_unrealized_pl_percent"`
	TotalRealizedPL     float64            `json:"total_realized_pl"`
	CashByCurrency      map[string]float64 `json:"cash_by_currency"`
	TotalCash           float64            `json:"total_cash"`
	TotalPortfolioValue float64            `json:"total_portfolio_value"`
	CashAllocationPct   float64            `json:"cash_allocation_percent"`
}

// ChartPoint is one point of a portfolio value time series.
type ChartPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// NormalizedPoint is a time-series point expressed as percent growth
// relative to the first point of the series.
type NormalizedPoint struct {
	Date    string  `json:"date"`
	Percent float64 `json:"percent"`
}

// SeriesComparison holds one side of a benchmark comparison.
type SeriesComparison struct {
	StartValue    float64           `json:"start_value"`
	EndValue      float64           `json:"end_value"`
	AbsoluteGain  float64           `json:"absolute_gain"`
	PercentReturn float64           `json:"percent_return"`
	Series        []NormalizedPoint `json:"series"`
}

// BenchmarkComparison compares portfolio growth against a benchmark
// instrument over the dates the two series share.
type BenchmarkComparison struct {
	BenchmarkSymbol string           `json:"benchmark_symbol"`
	Portfolio       SeriesComparison `json:"portfolio"`
	Benchmark       SeriesComparison `json:"benchmark"`
}

// ErrorResponse is the JSON error envelope returned by the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
