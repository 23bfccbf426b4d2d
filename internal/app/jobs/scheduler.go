// Package jobs runs the periodic billing maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/statistics"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/metrics"
)

const jobTimeout = 5 * time.Minute

type Scheduler struct {
	cron    *cron.Cron
	log     *zap.SugaredLogger
	rec     *metrics.Recorder
	billing *billing.Service
	stats   *statistics.Service
	now     func() time.Time
}

func NewScheduler(cfg *config.Config, log *zap.SugaredLogger, rec *metrics.Recorder, billingSvc *billing.Service, stats *statistics.Service) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log}))),
		log:     log,
		rec:     rec,
		billing: billingSvc,
		stats:   stats,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Jobs.ExpirySweepSpec, s.run("expiry_sweep", s.ExpirySweep)); err != nil {
		return nil, fmt.Errorf("invalid expiry sweep spec %q: %w", cfg.Jobs.ExpirySweepSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.Jobs.DailySnapshotSpec, s.run("daily_snapshot", s.DailySnapshot)); err != nil {
		return nil, fmt.Errorf("invalid daily snapshot spec %q: %w", cfg.Jobs.DailySnapshotSpec, err)
	}
	return s, nil
}

func (s *Scheduler) run(name string, fn func(context.Context) error) func() {
	return func() {
		start := time.Now()
		defer s.rec.ObserveProcess(metrics.ProcessTypeJob, name, start)

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Errorw("job failed", "job", name, "error", err.Error())
			return
		}
		s.log.Debugw("job finished", "job", name, "elapsed", time.Since(start).String())
	}
}

// ExpirySweep expires subscriptions whose cancellation took effect.
func (s *Scheduler) ExpirySweep(ctx context.Context) error {
	n, err := s.billing.ExpireDue(ctx)
	if n > 0 {
		s.log.Infow("expired subscriptions", "count", n)
	}
	return err
}

// DailySnapshot records yesterday's active subscriptions. It runs shortly
// after midnight UTC.
func (s *Scheduler) DailySnapshot(ctx context.Context) error {
	day := s.now().UTC().AddDate(0, 0, -1)
	n, err := s.stats.SaveDailySnapshots(ctx, day)
	if err != nil {
		return err
	}
	s.log.Infow("saved daily snapshots", "date", day.Format(time.DateOnly), "count", n)
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

func register(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}

var Module = fx.Options(
	fx.Provide(NewScheduler),
	fx.Invoke(register),
)
