package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
	"github.com/skywatch/apod-pipeline/internal/pipeline"
)

// scheduleCommand runs the pipeline on a cron cadence until interrupted.
// Per-run retry and backoff stay with the invoking host for one-shot runs;
// in scheduled mode each failed cadence is simply reported and the next
// cadence retries naturally, since re-running a date is always safe.
func scheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := cron.New()
			_, err = c.AddFunc(d.cfg.Schedule.Spec, func() {
				runScheduled(ctx, d)
			})
			if err != nil {
				return err
			}

			d.log.Info("Scheduler started",
				logger.String("spec", d.cfg.Schedule.Spec),
			)
			c.Start()

			<-ctx.Done()
			d.log.Info("Shutdown signal received, stopping scheduler")

			// Let an in-flight run finish before exiting.
			<-c.Stop().Done()
			return nil
		},
	}
}

// runScheduled executes one run for today's date (UTC) and logs the outcome.
func runScheduled(ctx context.Context, d *deps) {
	now := time.Now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	report := d.controller.Run(ctx, date)

	switch report.Outcome() {
	case pipeline.StatusSuccess:
		d.log.Info("Scheduled run succeeded",
			logger.String("date", date.Format(domain.DateFormat)),
			logger.String("run_id", report.RunID),
		)
	case pipeline.StatusTransientFailure:
		d.log.Warn("Scheduled run failed transiently, next cadence will retry",
			logger.String("date", date.Format(domain.DateFormat)),
			logger.String("run_id", report.RunID),
			logger.Error(report.Err()),
		)
	default:
		d.log.Error("Scheduled run failed fatally, intervention required",
			logger.String("date", date.Format(domain.DateFormat)),
			logger.String("run_id", report.RunID),
			logger.Error(report.Err()),
		)
	}
}
