package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/logger"
	"github.com/skywatch/apod-pipeline/internal/pipeline"
)

// backfillCommand runs the pipeline sequentially over an inclusive date
// range. Transient failures are reported and the range continues; a fatal
// failure stops the backfill.
func backfillCommand() *cobra.Command {
	var fromFlag, toFlag string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run the pipeline for an inclusive range of dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := domain.ParseDate(fromFlag)
			if err != nil {
				return err
			}
			to, err := domain.ParseDate(toFlag)
			if err != nil {
				return err
			}
			if to.Before(from) {
				return fmt.Errorf("backfill range is inverted: %s is after %s", fromFlag, toFlag)
			}

			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			return runBackfill(cmd, d, from, to)
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "first date of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "last date of the range (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// runBackfill executes one run per date. Dates are independent: the record
// key is per-date, so a failure for one date never affects the others.
func runBackfill(cmd *cobra.Command, d *deps, from, to time.Time) error {
	var succeeded, transient int

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		report := d.controller.Run(cmd.Context(), date)

		switch report.Outcome() {
		case pipeline.StatusSuccess:
			succeeded++
		case pipeline.StatusTransientFailure:
			transient++
			d.log.Warn("Backfill date hit a transient failure, continuing",
				logger.String("date", date.Format(domain.DateFormat)),
				logger.Error(report.Err()),
			)
		default:
			return &CodedError{
				Code: ExitFatal,
				Err: fmt.Errorf("backfill stopped at %s: %w",
					date.Format(domain.DateFormat), report.Err()),
			}
		}
	}

	d.log.Info("Backfill finished",
		logger.Int("succeeded", succeeded),
		logger.Int("transient_failures", transient),
	)

	if transient > 0 {
		return &CodedError{
			Code: ExitTransient,
			Err:  errors.New("backfill left transiently failed dates; re-run the same range to fill them"),
		}
	}
	return nil
}
