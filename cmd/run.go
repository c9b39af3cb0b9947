package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skywatch/apod-pipeline/internal/domain"
	"github.com/skywatch/apod-pipeline/internal/pipeline"
)

// runCommand executes one pipeline run for a single calendar date.
func runCommand() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for a single date",
		Long: `Fetches, normalizes, persists and snapshots the record for one
calendar date. Defaults to today (UTC). Exit code 2 signals a transient
failure the scheduling host should retry; exit code 1 is fatal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := resolveDate(dateFlag)
			if err != nil {
				return err
			}

			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			report := d.controller.Run(cmd.Context(), date)
			return reportToError(report)
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "calendar date to process (YYYY-MM-DD, default today UTC)")

	return cmd
}

// resolveDate parses the --date flag, defaulting to today in UTC.
func resolveDate(flag string) (time.Time, error) {
	if flag == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return domain.ParseDate(flag)
}

// reportToError maps a run report onto the exit code contract.
func reportToError(report *pipeline.RunReport) error {
	switch report.Outcome() {
	case pipeline.StatusSuccess:
		return nil
	case pipeline.StatusTransientFailure:
		return &CodedError{
			Code: ExitTransient,
			Err:  fmt.Errorf("run %s: transient failure in %s step: %w", report.RunID, failedStep(report), report.Err()),
		}
	default:
		return &CodedError{
			Code: ExitFatal,
			Err:  fmt.Errorf("run %s: fatal failure in %s step: %w", report.RunID, failedStep(report), report.Err()),
		}
	}
}

// failedStep names the step that ended the run.
func failedStep(report *pipeline.RunReport) pipeline.State {
	for _, step := range report.Steps {
		if step.Status != pipeline.StatusSuccess {
			return step.Step
		}
	}
	return report.State
}
