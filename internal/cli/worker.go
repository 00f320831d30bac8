package cli

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbheramil/smart-seo-fixer/internal/runner"
)

func workerCmd(app *App) *cobra.Command {
	var count, duration int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the sweep driver until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			runners := make([]*runner.Runner, 0, count)
			for i := 0; i < count; i++ {
				r := runner.New(i+1, app.Manager, app.Store, app.Config.Poll())
				r.Start()
				runners = append(runners, r)
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

			if duration > 0 {
				log.Printf("running %d runner(s) for %d seconds", count, duration)
				select {
				case <-time.After(time.Duration(duration) * time.Second):
					log.Println("duration elapsed; shutting down")
				case <-sigs:
					log.Println("signal received; shutting down")
				}
			} else {
				log.Printf("running %d runner(s) until interrupted (Ctrl+C)", count)
				<-sigs
				log.Println("signal received; shutting down")
			}

			for _, r := range runners {
				r.Stop()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "Number of runners to start")
	cmd.Flags().IntVar(&duration, "duration", 0, "Run for N seconds then stop (0 = until SIGINT)")
	return cmd
}
