package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/planbmotoru/engine/internal/domain"
	"github.com/planbmotoru/engine/internal/modules/ledger"
	"github.com/planbmotoru/engine/internal/modules/risk"
)

// ReturnsFunc supplies the current per-symbol daily return histories.
type ReturnsFunc func() map[string][]float64

// RiskSnapshotJob periodically recomputes the portfolio risk report and logs
// risk level transitions. The latest report stays available for readers.
type RiskSnapshotJob struct {
	book     *ledger.Ledger
	analyzer *risk.Analyzer
	returns  ReturnsFunc
	log      zerolog.Logger

	mu        sync.RWMutex
	latest    domain.RiskReport
	hasLatest bool
}

// NewRiskSnapshotJob wires a snapshot job. returns may be nil, in which case
// every report is concentration-only.
func NewRiskSnapshotJob(book *ledger.Ledger, analyzer *risk.Analyzer, returns ReturnsFunc, log zerolog.Logger) *RiskSnapshotJob {
	return &RiskSnapshotJob{
		book:     book,
		analyzer: analyzer,
		returns:  returns,
		log:      log.With().Str("job", "risk_snapshot").Logger(),
	}
}

// Name implements Job.
func (j *RiskSnapshotJob) Name() string { return "risk_snapshot" }

// Run implements Job. A cancelled context skips the snapshot so shutdown does
// not wait on analysis.
func (j *RiskSnapshotJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var history map[string][]float64
	if j.returns != nil {
		history = j.returns()
	}

	report := j.analyzer.Analyze(j.book.Snapshot(), history)

	j.mu.Lock()
	previous := j.latest
	hadPrevious := j.hasLatest
	j.latest = report
	j.hasLatest = true
	j.mu.Unlock()

	if hadPrevious && previous.RiskLevel != report.RiskLevel {
		j.log.Warn().
			Str("from", string(previous.RiskLevel)).
			Str("to", string(report.RiskLevel)).
			Float64("hhi", report.HHI).
			Float64("max_weight", report.MaxWeight).
			Msg("Portfolio risk level changed")
	}

	return nil
}

// Latest returns the most recent report, if any run has completed.
func (j *RiskSnapshotJob) Latest() (domain.RiskReport, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest, j.hasLatest
}
