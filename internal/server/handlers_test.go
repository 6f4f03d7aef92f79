package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbmotoru/engine/internal/config"
	"github.com/planbmotoru/engine/internal/domain"
	"github.com/planbmotoru/engine/internal/modules/holding"
	"github.com/planbmotoru/engine/internal/modules/ledger"
	"github.com/planbmotoru/engine/internal/modules/optimization"
	"github.com/planbmotoru/engine/internal/modules/risk"
	"github.com/planbmotoru/engine/internal/modules/signals"
	"github.com/planbmotoru/engine/internal/scheduler"
)

func newTestServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	log := zerolog.Nop()

	aggregator, err := signals.NewAggregator(config.DefaultFactorWeights(), log)
	require.NoError(t, err)

	book, err := ledger.New("test", 100000, log)
	require.NoError(t, err)

	analyzer := risk.NewAnalyzer(0.02, log)
	riskJob := scheduler.NewRiskSnapshotJob(book, analyzer, nil, log)

	srv := New(Config{
		Log:        log,
		Port:       0,
		Aggregator: aggregator,
		Advisor:    holding.NewAdvisor(log),
		Book:       book,
		Analyzer:   analyzer,
		Optimizer:  optimization.NewOptimizer(10*time.Second, 0.02, log),
		RiskJob:    riskJob,
	})
	return srv, book
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleEvaluate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/signals/evaluate", map[string]interface{}{
		"symbol": "THYAO",
		"factors": []map[string]interface{}{
			{"provider_id": "financial", "score": 85, "confidence": 0.9},
			{"provider_id": "technical", "score": 80, "confidence": 0.8},
			{"provider_id": "trend", "score": 75, "confidence": 0.8},
			{"provider_id": "cyclical", "score": 70, "confidence": 0.7},
			{"provider_id": "sentiment", "score": 90, "confidence": 0.6},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Decision domain.Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.SignalBuy, resp.Decision.Signal)
	assert.Equal(t, "THYAO", resp.Decision.Symbol)
	assert.Greater(t, resp.Decision.TotalScore, 70.0)
}

func TestHandleEvaluate_WithHistoryAddsRecommendation(t *testing.T) {
	srv, _ := newTestServer(t)

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/signals/evaluate", map[string]interface{}{
		"symbol": "GARAN",
		"factors": []map[string]interface{}{
			{"provider_id": "financial", "score": 50, "confidence": 0.5},
			{"provider_id": "technical", "score": 50, "confidence": 0.5},
		},
		"closes": closes,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Decision       domain.Decision        `json:"decision"`
		Recommendation map[string]interface{} `json:"recommendation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Recommendation)
	assert.Greater(t, resp.Decision.HoldingDays, 0)
	assert.Len(t, resp.Decision.Targets, 4)
}

func TestHandleEvaluate_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/signals/evaluate", map[string]interface{}{
		"factors": []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleApplyTradeAndPortfolio(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/trades", map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "BUY",
		"quantity": 10,
		"price":    100,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolio/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Weights    map[string]float64 `json:"weights"`
		Allocation map[string]float64 `json:"allocation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.01, resp.Weights["AAPL"], 1e-9)
	assert.InDelta(t, 0.99, resp.Allocation["CASH"], 1e-9)
}

func TestHandleApplyTrade_InsufficientFunds(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/trades", map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "BUY",
		"quantity": 1e6,
		"price":    100,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleApplyTrade_InvalidInput(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/trades", map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "BUY",
		"quantity": -5,
		"price":    100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpdatePrices(t *testing.T) {
	srv, book := newTestServer(t)

	_, err := book.ApplyTrade("AAPL", domain.SideBuy, 10, 100, 0)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/prices", map[string]interface{}{
		"prices": map[string]float64{"AAPL": 150, "GHOST": 10},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Updated []string `json:"updated"`
		Skipped []string `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"AAPL"}, resp.Updated)
	assert.Equal(t, []string{"GHOST"}, resp.Skipped)

	pos, ok := book.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 150.0, pos.CurrentPrice, 1e-9)
}

func TestHandleUpdatePrices_BadEntryDoesNotAbortBatch(t *testing.T) {
	srv, book := newTestServer(t)

	_, err := book.ApplyTrade("AAPL", domain.SideBuy, 10, 100, 0)
	require.NoError(t, err)
	_, err = book.ApplyTrade("MSFT", domain.SideBuy, 10, 200, 0)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/portfolio/prices", map[string]interface{}{
		"prices": map[string]float64{"AAPL": 150, "MSFT": -1, "GHOST": 10},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Updated []string          `json:"updated"`
		Skipped []string          `json:"skipped"`
		Failed  map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"AAPL"}, resp.Updated)
	assert.Equal(t, []string{"GHOST"}, resp.Skipped)
	assert.Contains(t, resp.Failed, "MSFT")

	pos, ok := book.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 150.0, pos.CurrentPrice, 1e-9, "valid entries apply regardless of bad ones")

	pos, ok = book.Position("MSFT")
	require.True(t, ok)
	assert.InDelta(t, 200.0, pos.CurrentPrice, 1e-9, "rejected entry leaves the prior price")
}

func TestHandleAnalyzeRisk(t *testing.T) {
	srv, book := newTestServer(t)

	_, err := book.ApplyTrade("AAPL", domain.SideBuy, 10, 100, 0)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/risk/analyze", map[string]interface{}{
		"returns": map[string][]float64{},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.RiskReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, domain.RiskHigh, report.RiskLevel)
	assert.True(t, report.Degraded)
	assert.Nil(t, report.VaR95)
}

func TestHandleLatestRisk(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/risk/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, srv.riskJob.Run(context.Background()))

	rec = doJSON(t, srv, http.MethodGet, "/api/risk/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.RiskReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestHandleOptimize(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/optimization/optimize", map[string]interface{}{
		"symbols":              []string{"A", "B"},
		"expected_returns":     map[string]float64{"A": 0.08, "B": 0.08},
		"covariance":           [][]float64{{0.04, 0}, {0, 0.04}},
		"max_weight_per_asset": 1.0,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result optimization.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 0.5, result.OptimalWeights["A"], 0.02)
}

func TestHandleOptimize_RejectsSingleAsset(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/optimization/optimize", map[string]interface{}{
		"symbols":          []string{"A"},
		"expected_returns": map[string]float64{"A": 0.08},
		"covariance":       [][]float64{{0.04}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestRouteNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/%s", "nope"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
