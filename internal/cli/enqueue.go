package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
)

func enqueueCmd(app *App) *cobra.Command {
	var itemsCSV, itemsFile, optsJSON string

	cmd := &cobra.Command{
		Use:   "enqueue <job-type>",
		Short: "Create a job over an ordered item list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(itemsCSV, itemsFile)
			if err != nil {
				return err
			}
			var opts job.Options
			if optsJSON != "" {
				if err := json.Unmarshal([]byte(optsJSON), &opts); err != nil {
					return fmt.Errorf("invalid options JSON: %w", err)
				}
			}
			j, err := app.Manager.Enqueue(cmd.Context(), args[0], items, opts)
			if err != nil {
				return err
			}
			fmt.Printf("enqueued job %s (%d items)\n", j.ID, j.TotalItems)
			return nil
		},
	}
	cmd.Flags().StringVar(&itemsCSV, "items", "", "Comma-separated item refs")
	cmd.Flags().StringVar(&itemsFile, "items-file", "", "File with one item ref per line")
	cmd.Flags().StringVar(&optsJSON, "options", "", "Options JSON passed to the processor")
	return cmd
}

func readItems(csv, file string) ([]string, error) {
	if csv != "" && file != "" {
		return nil, fmt.Errorf("use --items or --items-file, not both")
	}
	var raw []string
	switch {
	case csv != "":
		raw = strings.Split(csv, ",")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = strings.Split(string(data), "\n")
	default:
		return nil, fmt.Errorf("provide --items or --items-file")
	}
	items := make([]string, 0, len(raw))
	for _, it := range raw {
		it = strings.TrimSpace(it)
		if it != "" {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("item list is empty")
	}
	return items, nil
}
