package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"powerwatch/internal/app"
	"powerwatch/internal/composer"
	"powerwatch/internal/config"
	"powerwatch/internal/schedule"
	logx "powerwatch/pkg/logx"
)

func scheduleCmd(cfgPath *string) *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "schedule <region> <queue>",
		Short: "Fetch the outage schedule once and print today's spans and the prediction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if tz == "" {
				tz = cfg.Monitor.Timezone
			}
			loc, err := config.LoadLocation("--tz", tz, nil)
			if err != nil {
				return err
			}
			cache, err := app.NewScheduleCache(cfg, logx.NewConsole("warn"))
			if err != nil {
				return err
			}
			if err := cache.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}

			key := schedule.Key{Region: args[0], Queue: args[1]}
			if !cache.Has(key) {
				return fmt.Errorf("%s: %w", key, schedule.ErrNoData)
			}
			printSchedule(cmd.OutOrStdout(), cache, key, time.Now().In(loc), loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone (defaults to monitor.timezone)")
	return cmd
}

func printSchedule(w io.Writer, cache *schedule.Cache, key schedule.Key, now time.Time, loc *time.Location) {
	g := cache.Grid()
	fmt.Fprintf(w, "%s (fetched %s)\n", key, g.FetchedAt.In(loc).Format("02.01 15:04"))
	for _, date := range []string{g.Today, g.Tomorrow} {
		day := g.Day(key, date)
		if day == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", date)
		spans := composer.Spans(day)
		if len(spans) == 0 {
			fmt.Fprintln(w, "  no outages")
		}
		for _, s := range spans {
			fmt.Fprintf(w, "  %s-%s %s\n", s.From, s.To, s.Status)
		}
	}

	p := cache.PredictAt(key, now, loc)
	fmt.Fprintln(w)
	line := func(name string, t *time.Time) {
		v := "-"
		if t != nil {
			v = composer.When(*t, now, loc)
		}
		fmt.Fprintf(w, "%-22s %s\n", name, v)
	}
	line("next disable:", p.NextDisable)
	line("next possible disable:", p.NextPossibleDisable)
	line("next enable:", p.NextEnable)
	line("next possible enable:", p.NextPossibleEnable)
}
