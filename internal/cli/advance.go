package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
)

func advanceCmd(app *App) *cobra.Command {
	var untilDone bool

	cmd := &cobra.Command{
		Use:   "advance <job-id>",
		Short: "Process the next chunk of a job",
		Long: "Processes one chunk and prints the progress snapshot. With " +
			"--until-done it loops, sleeping the returned retry_after between " +
			"chunks, until the job reaches a terminal status.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			for {
				snap, err := app.Manager.Advance(cmd.Context(), id)
				if errors.Is(err, job.ErrAlreadyRunning) && untilDone {
					time.Sleep(time.Second)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s %d/%d (%d failed)\n",
					snap.JobID, snap.Status, snap.Processed, snap.Total, snap.Failed)
				if snap.Done || !untilDone {
					return nil
				}
				if snap.RetryAfter < 0 {
					return fmt.Errorf("job %s blocked: a required service has no rate budget configured", id)
				}
				if snap.RetryAfter > 0 {
					fmt.Printf("rate limited; waiting %s\n", snap.RetryAfter)
					time.Sleep(snap.RetryAfter)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "Keep advancing until the job is terminal")
	return cmd
}
