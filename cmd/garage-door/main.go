// Command garage-door infers garage door motion from GPIO sensors, publishes
// door status to MQTT and accepts open, close and lock commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "/etc/garage-door.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "garage-door",
		Short: "Garage door state daemon",
		Long:  "garage-door tracks garage doors from their end sensors, travel timer and lock hardware, and publishes their status to MQTT.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStateCmd())
	cmd.AddCommand(newTableCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "garage-door %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
