// Package cli wires the cobra command surface over the queue manager.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/mbheramil/smart-seo-fixer/internal/config"
	"github.com/mbheramil/smart-seo-fixer/internal/queue"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

// App carries the shared collaborators every command needs.
type App struct {
	Manager *queue.Manager
	Store   store.Store
	Config  *config.Config
	CfgPath string
}

// Execute builds the command tree and runs it.
func Execute(app *App) error {
	root := &cobra.Command{
		Use:           "seoqueue",
		Short:         "Batch-job engine for bulk SEO operations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(enqueueCmd(app))
	root.AddCommand(advanceCmd(app))
	root.AddCommand(workerCmd(app))
	root.AddCommand(statusCmd(app))
	root.AddCommand(listCmd(app))
	root.AddCommand(cancelCmd(app))
	root.AddCommand(retryCmd(app))
	root.AddCommand(configCmd(app))

	return root.Execute()
}
