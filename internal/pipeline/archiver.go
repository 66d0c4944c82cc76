package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

// Archiver moves snapshot history past the retention window to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run archives every snapshot row older than the retention window.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.retentionDays)
	start := time.Now()

	n, err := a.blobArchiver.ArchiveSnapshots(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	a.logger.Info("archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("rows", n),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// RunCron runs the archiver on a standard cron schedule ("minute hour
// day-of-month month day-of-week" or a descriptor such as "@daily", UTC)
// until ctx is cancelled. A run still in progress when the next one is due
// causes that tick to be skipped.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	schedule, err := parseSchedule(cronExpr)
	if err != nil {
		return err
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(schedule, cron.FuncJob(func() {
		if err := a.Run(ctx); err != nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
	}))

	c.Start()
	a.logger.Info("archiver cron started",
		slog.String("cron", cronExpr),
		slog.Time("next", schedule.Next(time.Now().UTC())),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info("archiver cron stopped")
	return ctx.Err()
}

func parseSchedule(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	return schedule, nil
}
