package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

func statusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Manager.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s [%s] %s: %d/%d processed, %d failed\n",
				st.ID, st.Type, st.Status, st.Processed, st.Total, st.Failed)
			return nil
		},
	}
}

func listCmd(app *App) *cobra.Command {
	var status, jobType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := app.Manager.List(cmd.Context(), store.Filter{Status: status, Type: jobType})
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("no jobs found")
				return nil
			}
			for _, st := range rows {
				fmt.Printf("%s\t%s\t%s\t%d/%d\t%d failed\n",
					st.ID, st.Type, st.Status, st.Processed, st.Total, st.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&jobType, "type", "", "Filter by job type")
	return cmd
}

func cancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cooperative cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Manager.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("cancel requested; takes effect at the next chunk boundary")
			return nil
		},
	}
}

func retryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Create a new job over a finished job's failed items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := app.Manager.RetryFailed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("created retry job %s (%d items)\n", j.ID, j.TotalItems)
			return nil
		},
	}
}
