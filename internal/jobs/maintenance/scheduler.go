package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRunTimeout = time.Minute

type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type Metrics interface {
	JobRun(job string, removed int64, err error)
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler runs each job once at start and then on its own ticker until the
// context is cancelled. A failing run is logged and retried on the next tick.
type Scheduler struct {
	entries    []entry
	runTimeout time.Duration
	metrics    Metrics
	logger     *zap.Logger
}

func NewScheduler(runTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runTimeout: runTimeout, logger: logger}
}

func (s *Scheduler) AttachMetrics(metrics Metrics) {
	s.metrics = metrics
}

// Add registers job. Jobs with a non-positive interval are skipped.
func (s *Scheduler) Add(job Job, interval time.Duration) {
	if job == nil || interval <= 0 {
		return
	}
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	s.runOnce(ctx, e.job)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, e.job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	removed, err := job.Run(runCtx)
	if s.metrics != nil {
		s.metrics.JobRun(job.Name(), removed, err)
	}
	if err != nil {
		s.logger.Error("maintenance job failed", zap.String("job", job.Name()), zap.Error(err))
		return
	}
	s.logger.Debug("maintenance job finished",
		zap.String("job", job.Name()),
		zap.Int64("removed", removed),
		zap.Duration("duration", time.Since(start)),
	)
}
