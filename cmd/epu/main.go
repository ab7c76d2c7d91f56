// Package main is the entry point for the epu CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOpts holds the persistent flags shared by every command.
type globalOpts struct {
	configPath string
}

func rootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:          "epu",
		Short:        "ECNU power usage recorder",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to epu.toml (default: $EPU_CONFIG, ./epu.toml, then the user config dir)")

	root.AddCommand(
		serveCmd(opts),
		statusCmd(opts),
		initCmd(),
		historyCmd(opts),
		degreeCmd(opts),
		archiveCmd(opts),
		roomCmd(opts),
		cookiesCmd(opts),
	)
	return root
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
