package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/planbmotoru/engine/internal/domain"
	"github.com/planbmotoru/engine/internal/modules/holding"
)

const neutralScore = 50.0

// factorInput is one provider's score as posted by the caller. Failed marks a
// provider that could not produce a score; the aggregator substitutes its
// neutral default.
type factorInput struct {
	ProviderID string  `json:"provider_id"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Failed     bool    `json:"failed,omitempty"`
}

type evaluateRequest struct {
	Symbol   string                 `json:"symbol"`
	Factors  []factorInput          `json:"factors"`
	Breakout *domain.BreakoutSignal `json:"breakout,omitempty"`

	// Optional price history enabling the holding period recommendation.
	Closes        []float64 `json:"closes,omitempty"`
	MomentumScore *float64  `json:"momentum_score,omitempty"`
	BreakoutScore *float64  `json:"breakout_score,omitempty"`
}

type evaluateResponse struct {
	Decision       domain.Decision         `json:"decision"`
	Recommendation *holding.Recommendation `json:"recommendation,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}

	results := make([]domain.ProviderResult, 0, len(req.Factors))
	for _, f := range req.Factors {
		result := domain.ProviderResult{
			ProviderID: f.ProviderID,
			Score:      f.Score,
			Confidence: f.Confidence,
		}
		if f.Failed {
			result.Err = domain.ErrProviderUnavailable
		}
		results = append(results, result)
	}

	decision := s.aggregator.Evaluate(req.Symbol, results, req.Breakout)

	response := evaluateResponse{Decision: decision}

	if len(req.Closes) > 0 {
		momentum := neutralScore
		if req.MomentumScore != nil {
			momentum = *req.MomentumScore
		}
		breakout := neutralScore
		if req.BreakoutScore != nil {
			breakout = *req.BreakoutScore
		}

		rec := s.advisor.Recommend(req.Symbol, closesToCandles(req.Closes), momentum, breakout)

		response.Decision.HoldingDays = rec.PeriodDays
		response.Decision.Targets = rec.Targets
		response.Decision.StopLoss = rec.StopLoss
		riskReward := rec.RiskReward
		response.Decision.RiskReward = &riskReward
		response.Recommendation = &rec
	}

	s.writeJSON(w, http.StatusOK, response)
}

type tradeRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
}

func (s *Server) handleApplyTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}

	pos, err := s.book.ApplyTrade(req.Symbol, domain.TradeSide(req.Side), req.Quantity, req.Price, req.Commission)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTrade):
			s.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientPosition):
			s.writeError(w, http.StatusUnprocessableEntity, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"position": pos,
		"cash":     s.book.Cash(),
	})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap := s.book.Snapshot()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio":            snap,
		"weights":              s.book.Weights(),
		"allocation":           s.book.Allocation(),
		"total_return_percent": s.book.TotalReturnPercent(),
	})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": s.book.Trades(),
	})
}

type priceUpdateRequest struct {
	Prices map[string]float64 `json:"prices"`
}

func (s *Server) handleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req priceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	// Each symbol is applied independently; one bad entry must not abort the
	// batch after earlier symbols already took effect.
	updated := make([]string, 0, len(req.Prices))
	skipped := make([]string, 0)
	failed := make(map[string]string)
	for symbol, price := range req.Prices {
		prev, held := s.book.Position(symbol)
		if err := s.book.UpdatePrice(symbol, price); err != nil {
			if errors.Is(err, domain.ErrUnknownSymbol) {
				skipped = append(skipped, symbol)
			} else {
				failed[symbol] = err.Error()
			}
			continue
		}
		if s.onPrice != nil && held && prev.CurrentPrice > 0 {
			s.onPrice(symbol, (price-prev.CurrentPrice)/prev.CurrentPrice)
		}
		updated = append(updated, symbol)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
		"skipped": skipped,
		"failed":  failed,
	})
}

type riskRequest struct {
	Returns map[string][]float64 `json:"returns"`
}

func (s *Server) handleAnalyzeRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	report := s.analyzer.Analyze(s.book.Snapshot(), req.Returns)
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatestRisk(w http.ResponseWriter, r *http.Request) {
	if s.riskJob == nil {
		s.writeError(w, http.StatusNotFound, errors.New("risk snapshots are not scheduled"))
		return
	}
	report, ok := s.riskJob.Latest()
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("no risk snapshot yet"))
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type optimizeRequest struct {
	Symbols           []string           `json:"symbols"`
	ExpectedReturns   map[string]float64 `json:"expected_returns"`
	Covariance        [][]float64        `json:"covariance"`
	MaxWeightPerAsset float64            `json:"max_weight_per_asset"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.optimizer.Optimize(
		r.Context(),
		req.Symbols,
		req.ExpectedReturns,
		req.Covariance,
		s.book.Weights(),
		req.MaxWeightPerAsset,
	)
	if err != nil {
		if errors.Is(err, domain.ErrOptimizationTimeout) {
			// The fallback allocation is still usable; the flag tells the
			// caller the solver gave up.
			s.writeJSON(w, http.StatusOK, result)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// closesToCandles wraps a bare close series as candles, one per trading day
// ending today.
func closesToCandles(closes []float64) []domain.Candle {
	now := time.Now().UTC()
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Timestamp: now.AddDate(0, 0, i-len(closes)+1),
			Close:     c,
		}
	}
	return out
}
