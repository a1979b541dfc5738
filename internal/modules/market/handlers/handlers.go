// Package handlers provides HTTP handlers for stock lookups, symbol
// search, and market status.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"folio/internal/domain"
	"folio/internal/modules/market"
)

// Handler handles market data HTTP requests
type Handler struct {
	service *market.Service
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(service *market.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "market").Logger(),
	}
}

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stocks/search", h.HandleSearch)
	r.Get("/stocks/{symbol}", h.HandleGetStock)
	r.Get("/stocks/{symbol}/news", h.HandleGetNews)
	r.Get("/market/status", h.HandleMarketStatus)
}

// HandleGetStock returns quote and company data for a symbol
func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	info, err := h.service.GetStockInfo(symbol)
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// HandleSearch finds symbols matching the q query parameter
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	results, err := h.service.Search(query)
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	if results == nil {
		results = []domain.SearchResult{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// HandleGetNews returns recent news articles for a symbol. The limit
// query parameter caps the number of articles.
func (h *Handler) HandleGetNews(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	articles, err := h.service.GetNews(symbol, limit)
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	if articles == nil {
		articles = []domain.NewsArticle{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   strings.ToUpper(strings.TrimSpace(symbol)),
		"articles": articles,
		"count":    len(articles),
	})
}

// HandleMarketStatus reports whether markets are currently trading
func (h *Handler) HandleMarketStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.MarketStatus())
}

func (h *Handler) writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg("Market data request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
