package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/monitor"
)

func newStateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print each door's status inferred from the sensors and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			reader, err := gpio.NewRealReader(cfg.Chip, cfg.InputLines())
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer reader.Close()
			return printState(cmd.OutOrStdout(), cfg, reader)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

// printState infers every door's initial status without touching any relay.
func printState(w io.Writer, cfg *config.Config, reader gpio.Reader) error {
	mon, _, err := buildMonitor(cfg, nil, monitor.Options{
		Reader: reader,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		return err
	}
	for _, d := range mon.Doors() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", d.Name(), d.Status().Track()); err != nil {
			return err
		}
	}
	return nil
}
