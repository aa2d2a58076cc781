package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"powerwatch/internal/app"
	logx "powerwatch/pkg/logx"
)

func probeCmd(cfgPath *string) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "probe <host>",
		Short: "Run one availability probe and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			level := "warn"
			if debug {
				level = "debug"
			}
			p, err := app.NewProber(cfg, logx.NewConsole(level))
			if err != nil {
				return err
			}

			start := time.Now()
			res := p.Probe(cmd.Context(), args[0])
			verdict := "unavailable"
			if res.Available {
				verdict = "available"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (attempts %d, %s)\n",
				args[0], verdict, res.Attempts, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log each check")
	return cmd
}
