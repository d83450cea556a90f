// Package scheduler runs the portal's background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"vansales/internal/archive"
	"vansales/internal/core"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
	"vansales/internal/report"
)

// Job names, also used as metric labels.
const (
	JobDailySummary = "daily_summary"
	JobRefresh      = "snapshot_refresh"
)

const jobTimeout = 2 * time.Minute

// Source is the part of the portal the jobs need.
type Source interface {
	Today() core.Date
	Summary(day core.Date) report.DailySummary
	Load(ctx context.Context) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron    *cron.Cron
	source  Source
	archive archive.Archive
	metrics *metrics.Metrics
	log     *applog.Logger
}

// New creates a scheduler whose schedules are evaluated in loc.
func New(loc *time.Location, source Source, arch archive.Archive, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		source:  source,
		archive: arch,
		metrics: m,
		log:     applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentScheduler}),
	}
}

// ScheduleSummary archives the day's summary on spec, a standard five field
// cron expression.
func (s *Scheduler) ScheduleSummary(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(JobDailySummary, s.RunSummary) }); err != nil {
		return fmt.Errorf("schedule daily summary %q: %w", spec, err)
	}
	return nil
}

// ScheduleRefresh reloads the snapshot from the store every interval so that
// writes made by other replicas or by hand become visible.
func (s *Scheduler) ScheduleRefresh(every time.Duration) error {
	if every <= 0 {
		return nil
	}
	if _, err := s.cron.AddFunc("@every "+every.String(), func() { s.run(JobRefresh, s.source.Load) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.log.Info("Starting scheduler", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.log.Info("Stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler jobs still running at shutdown")
	}
}

// RunSummary computes today's summary and stores it in the archive.
func (s *Scheduler) RunSummary(ctx context.Context) error {
	sum := s.source.Summary(s.source.Today())
	if err := s.archive.Save(ctx, sum); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Daily summary archived",
		applog.FieldDate, sum.Date,
		"sales", sum.Sales.String(),
		"expenses", sum.Expenses.String(),
		"entries", sum.Entries)
	return nil
}

func (s *Scheduler) run(job string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	end := s.metrics.Track(job)
	if err := end(fn(ctx)); err != nil {
		s.log.ErrorContext(ctx, "Scheduled job failed", "job", job, applog.FieldError, err)
	}
}
