// Command powerwatch monitors power availability at remote locations and
// notifies subscribed chats when it changes.
//
// Usage:
//
//	powerwatch run --config ./config.yaml
//	powerwatch probe 203.0.113.7
//	powerwatch schedule kyiv 1.1 --tz Europe/Kyiv
//	powerwatch subscribe home -100123456 --thread 7
//	powerwatch subscribers home
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	var cfgPath string
	root := &cobra.Command{
		Use:           "powerwatch",
		Short:         "Power availability monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")

	root.AddCommand(
		runCmd(&cfgPath),
		probeCmd(&cfgPath),
		scheduleCmd(&cfgPath),
		subscribeCmd(&cfgPath),
		unsubscribeCmd(&cfgPath),
		subscribersCmd(&cfgPath),
		versionCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			mod := ""
			if bi, ok := debug.ReadBuildInfo(); ok {
				mod = bi.Main.Path
			}
			fmt.Fprintf(cmd.OutOrStdout(), "powerwatch %s (%s, %s)\n", version, mod, runtime.Version())
		},
	}
}
