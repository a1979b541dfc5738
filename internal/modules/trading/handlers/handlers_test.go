package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/database"
	"folio/internal/domain"
	"folio/internal/events"
	"folio/internal/modules/portfolio"
	"folio/internal/modules/trading"
)

type stubProvider struct{}

func (stubProvider) GetQuotes(symbols []string) (map[string]domain.Quote, error) {
	return map[string]domain.Quote{}, nil
}

func (stubProvider) GetCompanyInfo(symbol string) (*domain.CompanyInfo, error) {
	return &domain.CompanyInfo{Symbol: symbol, Sector: "Technology", Industry: "Software", Beta: 1.1}, nil
}

func setupRouter(t *testing.T) chi.Router {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "portfolio.db"),
		Name: "portfolio",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	posRepo := portfolio.NewPositionRepository(db.Conn(), log)
	txRepo := trading.NewTransactionRepository(db.Conn(), log)
	svc := trading.NewService(db.Conn(), posRepo, txRepo, stubProvider{}, events.NewBus(log), log)

	r := chi.NewRouter()
	NewHandler(svc, log).RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r chi.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestBuyResponseShape(t *testing.T) {
	r := setupRouter(t)

	rec := postJSON(t, r, "/portfolio/buy", `{"symbol":"AAPL","quantity":"10","price":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "transaction")
	assert.NotContains(t, resp, "remaining_shares")
	assert.NotContains(t, resp, "total_realized_gains")
}

func TestSellResponseIncludesClosingFields(t *testing.T) {
	r := setupRouter(t)

	rec := postJSON(t, r, "/portfolio/buy", `{"symbol":"AAPL","quantity":"10","price":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, r, "/portfolio/sell", `{"symbol":"AAPL","quantity":"4","price":"120"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "ok", resp["status"])
	assert.InDelta(t, 80.0, resp["realized_gain"], 1e-9)
	assert.InDelta(t, 6.0, resp["remaining_shares"], 1e-9)
	assert.InDelta(t, 80.0, resp["total_realized_gains"], 1e-9)
}

func TestCoverResponseIncludesClosingFields(t *testing.T) {
	r := setupRouter(t)

	rec := postJSON(t, r, "/portfolio/short", `{"symbol":"TSLA","quantity":"5","price":"200"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, r, "/portfolio/cover", `{"symbol":"TSLA","quantity":"5","price":"180"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.InDelta(t, 100.0, resp["realized_gain"], 1e-9)
	assert.InDelta(t, 0.0, resp["remaining_shares"], 1e-9)
	assert.InDelta(t, 100.0, resp["total_realized_gains"], 1e-9)
}

func TestSellInsufficientSharesReturns400(t *testing.T) {
	r := setupRouter(t)

	rec := postJSON(t, r, "/portfolio/buy", `{"symbol":"AAPL","quantity":"10","price":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, r, "/portfolio/sell", `{"symbol":"AAPL","quantity":"11","price":"100"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
