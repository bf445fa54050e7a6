package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Scenario Scenario
	Output   string
}

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stress test and print a report",
		Long: `Run the stress test for the configured duration.

Settings come from --config when given; flags set on the command line
override the file. The report is written to stdout unless --output is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd, opts)
		},
	}

	bindScenarioFlags(cmd, &opts.Scenario)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the report to a file")

	return cmd
}

func runStress(cmd *cobra.Command, opts *RunOptions) error {
	scenario, err := opts.scenario(cmd, &opts.Scenario)
	if err != nil {
		return err
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	switch scenario.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	report, err := simulate(cmd.Context(), scenario, logger)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := report.Generate(w); err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	logger.Info("stress test complete", "run", report.RunID)
	return nil
}

// simulate populates a world and steps its scheduler until the scenario
// duration elapses or ctx is cancelled.
func simulate(ctx context.Context, scenario Scenario, logger *slog.Logger) (*Report, error) {
	world, err := newWorld(scenario, logger)
	if err != nil {
		return nil, err
	}
	schedule, err := world.Scheduler.BuildSchedule()
	if err != nil {
		return nil, err
	}

	logger.Info("populating storage", "entities", scenario.Entities)
	if err := world.Populate(scenario.Entities); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      uuid.Must(uuid.NewV7()).String(),
		Scenario:   scenario,
		Components: world.Storage.Registry().Len(),
		Plan:       schedule.String(),
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	logger.Info("running simulation", "duration", scenario.Duration, "stages", len(schedule.Stages))
	ctx, cancel := context.WithTimeout(ctx, scenario.Duration)
	defer cancel()

	startTime := time.Now()
	lastFrameTime := startTime
	var frameErrors int

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
		}

		deltaTime := time.Since(lastFrameTime)
		lastFrameTime = time.Now()

		updateStart := time.Now()
		if err := world.Scheduler.Once(deltaTime.Seconds()); err != nil {
			frameErrors++
			logger.Debug("frame failed", "update", report.TotalUpdates, "error", err)
		}
		report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
		report.TotalUpdates++
	}

	report.TotalTime = time.Since(startTime)
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)
	report.Systems = world.Scheduler.GetStats().Systems
	report.Storage = world.Storage.CollectStats()

	if frameErrors > 0 {
		logger.Warn("frames reported errors", "count", frameErrors)
	}
	logger.Info("simulation finished", "updates", report.TotalUpdates, "entities", report.Storage.TotalEntityCount)
	return report, nil
}
