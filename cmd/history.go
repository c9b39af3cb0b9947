package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skywatch/apod-pipeline/internal/snapshot"
)

// revisionIDDisplayLen truncates revision ids for readable output.
const revisionIDDisplayLen = 12

// historyCommand prints the snapshot revision chain, newest first.
func historyCommand() *cobra.Command {
	var limit int
	var verify bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the snapshot revision history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			repo, err := snapshot.Open(snapshot.Config{
				Path:       cfg.Snapshot.Path,
				WorkDir:    cfg.Snapshot.WorkDir,
				ExportFile: cfg.Snapshot.ExportFile,
			}, nil, log)
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			if verify {
				if verifyErr := repo.Verify(); verifyErr != nil {
					return fmt.Errorf("history verification failed: %w", verifyErr)
				}
				fmt.Println("History verified: linear chain, all objects present")
			}

			history, err := repo.History(limit)
			if err != nil {
				if errors.Is(err, snapshot.ErrNoRevisions) {
					fmt.Println("No snapshots committed yet")
					return nil
				}
				return err
			}

			for _, snap := range history {
				parent := "(root)"
				if snap.ParentRevisionID != "" {
					parent = snap.ParentRevisionID[:revisionIDDisplayLen]
				}
				fmt.Printf("%s  parent=%s  rows=%d  committed=%s\n",
					snap.RevisionID[:revisionIDDisplayLen],
					parent,
					snap.SourceRowCount,
					snap.CommittedAt.Format(time.RFC3339),
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of revisions to show (0 for all)")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the chain before printing")

	return cmd
}
