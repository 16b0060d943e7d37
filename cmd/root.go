// Package cmd defines the command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadshift/loadshift/app"
	"github.com/loadshift/loadshift/config"
	"github.com/loadshift/loadshift/core/forecast"
	"github.com/loadshift/loadshift/core/schedule"
	"github.com/loadshift/loadshift/infra/logger"
)

// Version is stamped at build time.
var Version = "dev"

var (
	cfgPath   string
	baseHost  string
	location  string
	tolerance int
	delay     int
	duration  int
	echo      bool
	shell     bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "loadshift DUE_BY COMMAND...",
	Short: "Run a command when grid carbon intensity is lowest",
	Long: `loadshift waits for the half-hour slot with the lowest forecast carbon
intensity before the deadline, then runs the given command.

DUE_BY is either a number of hours from now (for example 8 or 3.5) or an
ISO 8601 timestamp such as 2024-03-01T18:00.`,
	Args: cobra.MinimumNArgs(2),
	RunE: run,
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVarP(&baseHost, "base-host", "a", "", "forecast API or mirror base URL")
	rootCmd.Flags().IntVarP(&delay, "delay", "d", 0, "minutes into the slot to start the task (0-29)")
	rootCmd.Flags().BoolVarP(&echo, "echo", "e", false, "copy the task's output to stdout")
	rootCmd.Flags().IntVarP(&duration, "duration", "l", 10, "expected task duration in minutes")
	rootCmd.Flags().StringVarP(&location, "location", "o", "", `forecast source: "0" national, "1".."17" region, or an outward postcode`)
	rootCmd.Flags().BoolVar(&shell, "shell", false, "run the command through /bin/sh -c")
	rootCmd.Flags().IntVarP(&tolerance, "tolerance", "t", 5, "percent a later slot must improve on an earlier one")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := forecast.ParseSource(cfg.Scheduler.Location)
	if err != nil {
		return err
	}
	dueBy, err := parseDueBy(args[0], time.Now().UTC())
	if err != nil {
		return err
	}
	command := strings.Join(args[1:], " ")

	task := schedule.NewTask(command, dueBy, src,
		cfg.Scheduler.DurationMinutes, cfg.Scheduler.OffsetMinutes, cfg.Scheduler.TolerancePercent)
	task.Shell = cfg.Scheduler.Shell
	task.EchoOutput = cfg.Scheduler.EchoOutput

	svc, err := app.New(cfg, cfg.Scheduler.EchoOutput)
	if err != nil {
		return err
	}
	defer svc.Close()

	outcome, err := svc.Run(ctx, task)
	if err != nil {
		return err
	}
	report(cmd, outcome)
	return nil
}

// loadConfig reads the config file and layers explicit flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("base-host") {
		cfg.API.BaseHost = baseHost
	}
	if flags.Changed("location") {
		cfg.Scheduler.Location = location
	}
	if flags.Changed("tolerance") {
		cfg.Scheduler.TolerancePercent = tolerance
	}
	if flags.Changed("delay") {
		cfg.Scheduler.OffsetMinutes = delay
	}
	if flags.Changed("duration") {
		cfg.Scheduler.DurationMinutes = duration
	}
	if flags.Changed("echo") {
		cfg.Scheduler.EchoOutput = echo
	}
	if flags.Changed("shell") {
		cfg.Scheduler.Shell = shell
	}
	if err := cfg.Scheduler.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logger.SetGlobalLevel(level); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDueBy accepts a float number of hours from now or an ISO 8601
// timestamp. Bare timestamps are read as UTC.
func parseDueBy(arg string, now time.Time) (time.Time, error) {
	if hours, err := strconv.ParseFloat(arg, 64); err == nil {
		if hours <= 0 {
			return time.Time{}, fmt.Errorf("deadline must be in the future, got %s hours", arg)
		}
		return now.Add(time.Duration(hours * float64(time.Hour))), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, arg); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse deadline %q: want hours from now or an ISO 8601 timestamp", arg)
}

func report(cmd *cobra.Command, o schedule.Outcome) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "command:        %s\n", o.Command)
	fmt.Fprintf(out, "finished at:    %s\n", o.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "run duration:   %s\n", o.RunDuration.Round(time.Millisecond))
	fmt.Fprintf(out, "intensity:      %d gCO2/kWh (worst case %d)\n", o.ActualIntensity, o.WorstIntensity)
	fmt.Fprintf(out, "carbon saving:  %d%%\n", o.SavingPercent)
}
