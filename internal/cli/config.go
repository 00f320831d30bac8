package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func configCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change configuration",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := json.MarshalIndent(app.Config, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration key and save",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, val := args[0], args[1]
			switch key {
			case "chunk-size":
				n, err := strconv.Atoi(val)
				if err != nil || n < 1 {
					return fmt.Errorf("chunk-size must be a positive integer")
				}
				app.Config.ChunkSize = n
			case "claim-lease-sec":
				n, err := strconv.Atoi(val)
				if err != nil || n < 1 {
					return fmt.Errorf("claim-lease-sec must be a positive integer")
				}
				app.Config.LeaseSec = n
			case "db-path":
				app.Config.DBPath = val
			case "driver":
				app.Config.Driver = val
			case "mongo-uri":
				app.Config.MongoURI = val
			default:
				return fmt.Errorf("unknown config key %q", key)
			}
			if err := app.Config.Save(app.CfgPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Println("config saved")
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
