// Package maintenance runs the periodic sweeps that keep the ad session
// registry and the purchase ledger bounded.
package maintenance

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	AdSessionSweepJobName   = "ad_session_sweep"
	LedgerCompactionJobName = "purchase_ledger_compaction"
)

type adSessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
	Active(ctx context.Context) (int64, error)
}

type activeSessionsGauge interface {
	SetActiveAdSessions(count int64)
}

type AdSessionSweepJob struct {
	tracker adSessionSweeper
	gauge   activeSessionsGauge
	logger  *zap.Logger
}

func NewAdSessionSweepJob(tracker adSessionSweeper, logger *zap.Logger) *AdSessionSweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdSessionSweepJob{tracker: tracker, logger: logger}
}

// AttachGauge reports the number of sessions left after each sweep.
func (j *AdSessionSweepJob) AttachGauge(gauge activeSessionsGauge) {
	j.gauge = gauge
}

func (j *AdSessionSweepJob) Name() string {
	return AdSessionSweepJobName
}

func (j *AdSessionSweepJob) Run(ctx context.Context) (int64, error) {
	if j.tracker == nil {
		return 0, nil
	}
	removed, err := j.tracker.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep expired ad sessions: %w", err)
	}
	if removed > 0 {
		j.logger.Info("expired ad sessions removed", zap.Int("removed", removed))
	}

	if j.gauge != nil {
		active, err := j.tracker.Active(ctx)
		if err != nil {
			j.logger.Warn("count active ad sessions failed", zap.Error(err))
		} else {
			j.gauge.SetActiveAdSessions(active)
		}
	}
	return int64(removed), nil
}

type ledgerCompactor interface {
	Compact(ctx context.Context) (int64, error)
}

type LedgerCompactionJob struct {
	ledger ledgerCompactor
	logger *zap.Logger
}

func NewLedgerCompactionJob(ledger ledgerCompactor, logger *zap.Logger) *LedgerCompactionJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerCompactionJob{ledger: ledger, logger: logger}
}

func (j *LedgerCompactionJob) Name() string {
	return LedgerCompactionJobName
}

// Run deletes credited purchase records older than the ledger's retention.
// Records awaiting reconciliation are never removed.
func (j *LedgerCompactionJob) Run(ctx context.Context) (int64, error) {
	if j.ledger == nil {
		return 0, nil
	}
	removed, err := j.ledger.Compact(ctx)
	if err != nil {
		return 0, fmt.Errorf("compact purchase ledger: %w", err)
	}
	if removed > 0 {
		j.logger.Info("purchase ledger compaction completed", zap.Int64("deleted", removed))
	}
	return removed, nil
}
