package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"finreport/internal/core"
	applog "finreport/internal/log"
)

// DefaultJobTimeout bounds one scheduled run.
const DefaultJobTimeout = 30 * time.Minute

// Scheduler generates a report for every user on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	reports ReportService
	period  core.Period
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler registers the report job under a standard five-field spec.
func NewScheduler(spec string, period core.Period, reports ReportService, logger *slog.Logger) (*Scheduler, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	s := &Scheduler{
		cron:    cron.New(),
		spec:    spec,
		reports: reports,
		period:  period,
		timeout: DefaultJobTimeout,
		logger:  applog.WithComponent(logger, applog.ComponentScheduler),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("add report job %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce generates reports for all users and returns how many succeeded.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.InfoContext(ctx, "Executing scheduled reports", applog.FieldPeriod, s.period.String())

	n, err := s.reports.GenerateForAllUsers(ctx, s.period.String())
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled reports finished with errors",
			applog.FieldCount, n,
			applog.FieldError, err)
	} else {
		s.logger.InfoContext(ctx, "Scheduled reports finished",
			applog.FieldCount, n,
			applog.FieldDuration, time.Since(start).Milliseconds())
	}
	return n
}

// Next returns the next activation time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Report scheduler started", "schedule", s.spec, "next_run", s.Next())
}

// Stop halts the schedule and waits for a running job until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduled job still running at shutdown")
	}
}
