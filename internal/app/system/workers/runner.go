// internal/app/system/workers/runner.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/tasks"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Runner runs each job on its own ticker until Stop is called.
type Runner struct {
	jobs   []tasks.Job
	log    *zap.Logger
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewRunner creates a runner for jobs. Jobs with a non-positive interval are
// skipped.
func NewRunner(logger *zap.Logger, jobs ...tasks.Job) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{jobs: jobs, log: logger, stopCh: make(chan struct{})}
}

// Start begins one background loop per job.
func (w *Runner) Start() {
	for _, job := range w.jobs {
		if job.Interval <= 0 || job.Run == nil {
			w.log.Warn("skipping job without interval", zap.String("job", job.Name))
			continue
		}
		w.wg.Add(1)
		go w.run(job)
		w.log.Info("background job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
}

// Stop signals every loop to stop and waits for them to finish. It is safe
// to call more than once.
func (w *Runner) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("background jobs stopped")
	})
}

func (w *Runner) run(job tasks.Job) {
	defer w.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce(job)
		}
	}
}

func (w *Runner) runOnce(job tasks.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Long())
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		w.log.Error("background job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	w.log.Debug("background job finished",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)))
}
