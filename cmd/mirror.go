package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loadshift/loadshift/app"
	"github.com/loadshift/loadshift/config"
	"github.com/loadshift/loadshift/infra/logger"
)

var mirrorListen string

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Serve a shared cache of the carbon intensity forecast API",
	Long: `mirror answers forecast requests from an in-memory cache so a fleet of
schedulers pointed at it hits the upstream API at most once per half hour
per forecast source.`,
	Args: cobra.NoArgs,
	RunE: runMirror,
}

func init() {
	mirrorCmd.Flags().StringVar(&mirrorListen, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("listen") {
		cfg.Mirror.Listen = mirrorListen
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logger.SetGlobalLevel(level); err != nil {
		return err
	}
	return app.RunMirror(ctx, cfg)
}
