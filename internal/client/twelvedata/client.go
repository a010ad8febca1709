package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/almatkai/woolet-sub004/internal/logger"
	"github.com/almatkai/woolet-sub004/internal/metrics"
	"github.com/almatkai/woolet-sub004/internal/model"
)

const (
	DefaultBaseURL = "https://api.twelvedata.com"
	RequestTimeout = 30 * time.Second

	// MaxOutputSize is the largest number of bars one time_series call
	// can return.
	MaxOutputSize = 5000
)

// ErrUpstreamUnavailable marks a failed provider call: transport error,
// non-2xx status, or an error payload. Not retried; the cache layer's
// stale-serving fallback is the only recovery.
var ErrUpstreamUnavailable = errors.New("market data provider unavailable")

// Config holds the client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
}

// Client is a Twelve Data API client. All calls share one rate gate.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	gate       *intervalGate
}

// NewClient creates a new Twelve Data API client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = RequestTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		gate:       newIntervalGate(cfg.MinInterval),
	}
}

// TimeSeries fetches daily OHLCV bars for symbol, ascending by date.
// startDate and endDate are optional calendar-day bounds; outputSize is
// clamped to MaxOutputSize and defaults to it when zero.
func (c *Client) TimeSeries(ctx context.Context, symbol, startDate, endDate string, outputSize int) ([]model.PriceBar, error) {
	if outputSize <= 0 || outputSize > MaxOutputSize {
		outputSize = MaxOutputSize
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("outputsize", strconv.Itoa(outputSize))
	if startDate != "" {
		params.Set("start_date", startDate)
	}
	if endDate != "" {
		params.Set("end_date", endDate)
	}

	var resp timeSeriesResponse
	if err := c.get(ctx, "/time_series", symbol, params, &resp); err != nil {
		return nil, err
	}

	bars := make([]model.PriceBar, 0, len(resp.Values))
	for _, v := range resp.Values {
		bar, err := v.toPriceBar()
		if err != nil {
			return nil, fmt.Errorf("failed to parse bar for %s on %s: %w", symbol, v.Datetime, err)
		}
		bars = append(bars, bar)
	}

	// The provider returns newest-first; callers expect ascending.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// Quote fetches the latest quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp quoteResponse
	if err := c.get(ctx, "/quote", symbol, params, &resp); err != nil {
		return model.Quote{}, err
	}

	price, err := parseFloat(resp.Close)
	if err != nil {
		return model.Quote{}, fmt.Errorf("failed to parse quote close for %s: %w", symbol, err)
	}
	change, _ := parseFloat(resp.Change)
	pctChange, _ := parseFloat(resp.PercentChange)

	return model.Quote{
		Symbol:        resp.Symbol,
		Name:          resp.Name,
		Currency:      resp.Currency,
		Price:         price,
		Change:        change,
		PercentChange: pctChange,
		Date:          dateOnly(resp.Datetime),
	}, nil
}

// EODClose fetches the end-of-day close for symbol on a given date.
// Historical closes never change, so callers cache these for a long time.
func (c *Client) EODClose(ctx context.Context, symbol, date string) (EODPrice, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if date != "" {
		params.Set("date", date)
	}

	var resp eodResponse
	if err := c.get(ctx, "/eod", symbol, params, &resp); err != nil {
		return EODPrice{}, err
	}

	closePrice, err := parseFloat(resp.Close)
	if err != nil {
		return EODPrice{}, fmt.Errorf("failed to parse eod close for %s: %w", symbol, err)
	}
	return EODPrice{
		Symbol: resp.Symbol,
		Date:   dateOnly(resp.Datetime),
		Close:  closePrice,
	}, nil
}

// SearchSymbols looks up instruments matching the query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]model.SymbolMatch, error) {
	params := url.Values{}
	params.Set("symbol", query)

	var resp symbolSearchResponse
	if err := c.get(ctx, "/symbol_search", query, params, &resp); err != nil {
		return nil, err
	}

	matches := make([]model.SymbolMatch, 0, len(resp.Data))
	for _, m := range resp.Data {
		matches = append(matches, model.SymbolMatch{
			Symbol:     m.Symbol,
			Name:       m.InstrumentName,
			Exchange:   m.Exchange,
			Type:       m.InstrumentType,
			Currency:   m.Currency,
			Country:    m.Country,
			MICCode:    m.MICCode,
			ExchangeTZ: m.ExchangeTZ,
		})
	}
	return matches, nil
}

// get performs a rate-limited GET against the provider and decodes the
// response into out, which must embed apiError.
func (c *Client) get(ctx context.Context, endpoint, symbol string, params url.Values, out interface{ errorPayload() *apiError }) error {
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}

	params.Set("apikey", c.apiKey)
	u := c.baseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "woolet-investing/1.0")

	logger.LogProviderRequest(ctx, endpoint, symbol)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderError("transport")
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	logger.LogProviderResponse(ctx, endpoint, resp.StatusCode, duration)
	metrics.RecordProviderRequest(endpoint, resp.StatusCode, duration)

	if resp.StatusCode != http.StatusOK {
		metrics.RecordProviderError("http_status")
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordProviderError("read_body")
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.RecordProviderError("decode")
		return fmt.Errorf("%w: failed to decode response: %v", ErrUpstreamUnavailable, err)
	}

	if apiErr := out.errorPayload(); apiErr.Status == "error" {
		metrics.RecordProviderError("api_error")
		return fmt.Errorf("%w: %s (code %d)", ErrUpstreamUnavailable, apiErr.Message, apiErr.Code)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// dateOnly trims a provider datetime down to the calendar day.
func dateOnly(datetime string) string {
	if len(datetime) > len(model.DateLayout) {
		return datetime[:len(model.DateLayout)]
	}
	return datetime
}

func (v timeSeriesBar) toPriceBar() (model.PriceBar, error) {
	open, err := parseFloat(v.Open)
	if err != nil {
		return model.PriceBar{}, err
	}
	high, err := parseFloat(v.High)
	if err != nil {
		return model.PriceBar{}, err
	}
	low, err := parseFloat(v.Low)
	if err != nil {
		return model.PriceBar{}, err
	}
	closePrice, err := parseFloat(v.Close)
	if err != nil {
		return model.PriceBar{}, err
	}

	bar := model.PriceBar{
		Date: dateOnly(v.Datetime),
		Open: open,
		High: high,
		Low:  low,
		// The daily endpoint reports splits/dividends already applied, so
		// close doubles as the adjusted close.
		Close:         closePrice,
		AdjustedClose: closePrice,
	}
	if v.Volume != "" {
		vol, err := strconv.ParseInt(v.Volume, 10, 64)
		if err != nil {
			return model.PriceBar{}, err
		}
		bar.Volume = &vol
	}
	return bar, nil
}

func (e *apiError) errorPayload() *apiError { return e }
