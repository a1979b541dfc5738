// Package handlers provides HTTP handlers for trade execution and
// transaction history.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/domain"
	"folio/internal/modules/trading"
	"folio/internal/reliability"
)

// Handler handles trading HTTP requests
type Handler struct {
	service *trading.Service
	log     zerolog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(service *trading.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// tradeForm is the wire format for trade requests. Quantity and price
// arrive as strings from HTML forms, so both representations are
// accepted.
type tradeForm struct {
	Symbol   string      `json:"symbol"`
	Quantity json.Number `json:"quantity"`
	Price    json.Number `json:"price"`
	Date     string      `json:"date"` // YYYY-MM-DD, optional
}

// HandleBuy executes a buy order
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.executeTrade(w, r, h.service.Buy)
}

// HandleSell executes a sell order
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.executeTrade(w, r, h.service.Sell)
}

// HandleShort executes a short order
func (h *Handler) HandleShort(w http.ResponseWriter, r *http.Request) {
	h.executeTrade(w, r, h.service.Short)
}

// HandleCover executes a cover order
func (h *Handler) HandleCover(w http.ResponseWriter, r *http.Request) {
	h.executeTrade(w, r, h.service.Cover)
}

func (h *Handler) executeTrade(w http.ResponseWriter, r *http.Request, execute func(trading.TradeRequest) (*trading.TradeResult, error)) {
	req, err := h.parseTradeRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := execute(req)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"status":      "ok",
		"transaction": result.Transaction,
	}
	if result.RealizedGain != nil {
		resp["realized_gain"] = *result.RealizedGain
		resp["remaining_shares"] = *result.RemainingShares
		resp["total_realized_gains"] = *result.TotalRealizedGains
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// HandleRefreshPrices refreshes current prices for all positions
func (h *Handler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RefreshPrices()
	if err != nil {
		h.writeTradeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetTransactions returns transaction history with optional
// symbol, type, from, and to filters.
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	filter := trading.TransactionFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol"))),
	}

	if typ := r.URL.Query().Get("type"); typ != "" {
		txType := domain.TransactionType(strings.ToLower(typ))
		if !domain.ValidTransactionType(txType) {
			h.writeError(w, http.StatusBadRequest, "invalid transaction type: "+typ)
			return
		}
		filter.Type = txType
	}

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		filter.From = t
	}

	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		// Inclusive end of day
		filter.To = t.Add(24*time.Hour - time.Second)
	}

	transactions, err := h.service.History(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// parseTradeRequest accepts JSON bodies and HTML form submissions
func (h *Handler) parseTradeRequest(r *http.Request) (trading.TradeRequest, error) {
	var req trading.TradeRequest

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var form tradeForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			return req, errors.New("invalid JSON body")
		}
		req.Symbol = form.Symbol
		req.Quantity, _ = form.Quantity.Float64()
		req.Price, _ = form.Price.Float64()
		if form.Date != "" {
			t, err := time.Parse("2006-01-02", form.Date)
			if err != nil {
				return req, errors.New("invalid date, expected YYYY-MM-DD")
			}
			req.Date = t
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.New("invalid form body")
	}

	req.Symbol = r.PostFormValue("symbol")
	req.Quantity, _ = strconv.ParseFloat(r.PostFormValue("quantity"), 64)
	req.Price, _ = strconv.ParseFloat(r.PostFormValue("price"), 64)
	if date := r.PostFormValue("date"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return req, errors.New("invalid date, expected YYYY-MM-DD")
		}
		req.Date = t
	}

	return req, nil
}

// writeTradeError maps domain errors onto HTTP status codes
func (h *Handler) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrInsufficientShares):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, reliability.ErrCircuitOpen):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg("Trade failed")
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
