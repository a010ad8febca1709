package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/almatkai/woolet-sub004/internal/cache"
	"github.com/almatkai/woolet-sub004/internal/client/twelvedata"
	"github.com/almatkai/woolet-sub004/internal/logger"
	"github.com/almatkai/woolet-sub004/internal/middleware"
	"github.com/almatkai/woolet-sub004/internal/model"
	"github.com/almatkai/woolet-sub004/internal/service"
	"github.com/almatkai/woolet-sub004/internal/store"
)

// PriceReader defines the price aggregation operations exposed over HTTP
type PriceReader interface {
	Search(ctx context.Context, query string) ([]model.SymbolMatch, error)
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	GetPriceRange(ctx context.Context, req service.PriceRangeRequest) ([]model.PriceBar, error)
}

// PortfolioReader defines the analytics operations exposed over HTTP
type PortfolioReader interface {
	GetSummary(ctx context.Context, userID int64) (model.PortfolioSummary, error)
	GetChart(ctx context.Context, userID int64, rng string) ([]model.ChartPoint, error)
	GetBenchmark(ctx context.Context, userID int64, benchmark, rng string) (model.BenchmarkComparison, error)
}

// CacheAdmin defines the cache introspection and invalidation operations
type CacheAdmin interface {
	Stats() cache.Stats
	RefreshQueue() []string
	ClearAll(ctx context.Context) error
	Invalidate(ctx context.Context, key string) error
}

// InvestingHandler handles HTTP requests for the investing API
type InvestingHandler struct {
	prices    PriceReader
	portfolio PortfolioReader
	cache     CacheAdmin
}

// NewInvestingHandler creates a new investing handler instance
func NewInvestingHandler(prices PriceReader, portfolio PortfolioReader, cache CacheAdmin) *InvestingHandler {
	return &InvestingHandler{
		prices:    prices,
		portfolio: portfolio,
		cache:     cache,
	}
}

// HandleHealth handles the health check endpoint
func (h *InvestingHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "woolet-investing",
	})
}

// HandleSearch handles the symbol search endpoint
func (h *InvestingHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "Missing required query parameter: q")
		return
	}

	logger.LogServiceEvent(r.Context(), "symbol_search", "Symbol search request", map[string]interface{}{
		"query": query,
	})

	matches, err := h.prices.Search(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, "search", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": matches,
	})
}

// HandleQuote handles the latest quote endpoint
func (h *InvestingHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "Missing required query parameter: symbol")
		return
	}

	quote, err := h.prices.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeServiceError(w, r, "quote", err)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// HandlePrices handles the daily bar range endpoint
func (h *InvestingHandler) HandlePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := normalizeSymbol(q.Get("symbol"))

	var stockID int64
	if raw := q.Get("stock_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid stock_id")
			return
		}
		stockID = parsed
	}
	if symbol == "" && stockID == 0 {
		h.writeError(w, http.StatusBadRequest, "Provide symbol or stock_id")
		return
	}

	start, end := q.Get("start"), q.Get("end")
	for _, date := range []string{start, end} {
		if date == "" {
			continue
		}
		if _, err := model.ParseDate(date); err != nil {
			h.writeError(w, http.StatusBadRequest, "Dates must use YYYY-MM-DD")
			return
		}
	}

	bars, err := h.prices.GetPriceRange(r.Context(), service.PriceRangeRequest{
		StockID: stockID,
		Symbol:  symbol,
		Start:   start,
		End:     end,
	})
	if err != nil {
		h.writeServiceError(w, r, "prices", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"bars":   bars,
	})
}

// HandlePortfolioSummary handles the portfolio valuation endpoint
func (h *InvestingHandler) HandlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	logger.LogServiceEvent(r.Context(), "portfolio_summary", "Portfolio summary request", map[string]interface{}{
		"user_id": userID,
	})

	summary, err := h.portfolio.GetSummary(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "portfolio_summary", err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandlePortfolioChart handles the portfolio value time series endpoint
func (h *InvestingHandler) HandlePortfolioChart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	rng := chartRange(r)

	points, err := h.portfolio.GetChart(r.Context(), userID, rng)
	if err != nil {
		h.writeServiceError(w, r, "portfolio_chart", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"range":  rng,
		"points": points,
	})
}

// HandlePortfolioBenchmark handles the benchmark comparison endpoint
func (h *InvestingHandler) HandlePortfolioBenchmark(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "Missing required query parameter: symbol")
		return
	}
	rng := chartRange(r)

	cmp, err := h.portfolio.GetBenchmark(r.Context(), userID, symbol, rng)
	if err != nil {
		h.writeServiceError(w, r, "portfolio_benchmark", err)
		return
	}

	h.writeJSON(w, http.StatusOK, cmp)
}

// HandleCacheStats handles the cache statistics endpoint
func (h *InvestingHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// HandleRefreshQueue handles the refresh worklist endpoint
func (h *InvestingHandler) HandleRefreshQueue(w http.ResponseWriter, r *http.Request) {
	symbols := h.cache.RefreshQueue()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// HandleCacheClear handles full cache invalidation
func (h *InvestingHandler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearAll(r.Context()); err != nil {
		h.writeServiceError(w, r, "cache_clear", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleCacheInvalidate handles single-key invalidation
func (h *InvestingHandler) HandleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "Missing cache key")
		return
	}
	if err := h.cache.Invalidate(r.Context(), key); err != nil {
		h.writeServiceError(w, r, "cache_invalidate", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "key": key})
}

func (h *InvestingHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["userID"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID")
		return 0, false
	}
	return id, true
}

func chartRange(r *http.Request) string {
	rng := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("range")))
	if rng == "" {
		return "ALL"
	}
	return rng
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// writeServiceError maps service failures to status codes: upstream
// outages become 502, unknown stocks 404, bad ranges 400, the rest 500.
func (h *InvestingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger.GetLogger().WithFields(map[string]interface{}{
		"request_id": logger.GetRequestID(r.Context()),
		"error":      err.Error(),
		"event":      event,
	}).Error("Request failed")

	switch {
	case errors.Is(err, twelvedata.ErrUpstreamUnavailable):
		h.writeError(w, http.StatusBadGateway, "Market data provider unavailable")
	case errors.Is(err, store.ErrStockNotFound):
		h.writeError(w, http.StatusNotFound, "Unknown stock")
	case errors.Is(err, service.ErrInvalidRange):
		h.writeError(w, http.StatusBadRequest, "Invalid range, expected one of 1M 3M 6M 1Y 5Y ALL")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *InvestingHandler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.GetLogger().WithField("error", err.Error()).Error("Failed to encode response")
	}
}

func (h *InvestingHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, model.ErrorResponse{Error: message, Code: statusCode})
}

// SetupRoutes sets up HTTP routes for the investing service
func (h *InvestingHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/search", h.HandleSearch).Methods(http.MethodGet)
	api.HandleFunc("/quote", h.HandleQuote).Methods(http.MethodGet)
	api.HandleFunc("/prices", h.HandlePrices).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/{userID}/summary", h.HandlePortfolioSummary).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/{userID}/chart", h.HandlePortfolioChart).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/{userID}/benchmark", h.HandlePortfolioBenchmark).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", h.HandleCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/refresh-queue", h.HandleRefreshQueue).Methods(http.MethodGet)
	api.HandleFunc("/cache", h.HandleCacheClear).Methods(http.MethodDelete)
	api.HandleFunc("/cache/{key}", h.HandleCacheInvalidate).Methods(http.MethodDelete)
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CreateServer creates an HTTP server with middleware
func CreateServer(handler *InvestingHandler, port string) *http.Server {
	router := mux.NewRouter()
	handler.SetupRoutes(router)

	router.Use(middleware.MetricsMiddleware)
	router.Use(middleware.LoggingMiddleware)
	router.Use(corsMiddleware)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}
}
