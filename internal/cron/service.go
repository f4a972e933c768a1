package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job; a job that overruns is cancelled and
	// counted as failed.
	JobTimeout time.Duration
}

// Service runs the registered maintenance jobs on a fixed interval. A cycle
// only runs while the lock is held, so several workers can be deployed
// without doubling the work.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// Cycle summarises one RunOnce call.
type Cycle struct {
	Skipped bool
	Ran     []string
	// Err combines every job failure of the cycle.
	Err error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run starts a cycle right away and then one per interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle aborted", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one cycle. The returned error covers the lock only; job
// failures are reported through Cycle.Err, logged and counted.
func (s *Service) RunOnce(ctx context.Context) (Cycle, error) {
	var cycle Cycle
	if ctx.Err() != nil {
		return cycle, nil
	}
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return cycle, fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		cycle.Skipped = true
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return cycle, nil
	}
	defer func() {
		bg := context.WithoutCancel(ctx)
		if err := s.lock.Release(bg); err != nil {
			s.logg.Error(bg, "release cron lock", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		cycle.Ran = append(cycle.Ran, job.Name())
		cycle.Err = multierr.Append(cycle.Err, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(cycle.Ran),
		"failed": len(multierr.Errors(cycle.Err)),
	}), "cron cycle finished")
	return cycle, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", name), s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", name, p)
		}
		elapsed := time.Since(start)
		s.metrics.Record(name, elapsed, err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job done")
	}()
	return job.Run(jobCtx)
}
