package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Config  string

	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ecs-stress",
		Short: "Stress test the archetype ECS",
		Long: `Spawn a randomized population of entities, register a fixed set of systems
and step the scheduler as fast as possible, then report frame times,
per-system statistics, storage occupancy and memory usage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "YAML scenario file")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// scenario loads the config file, if any, and applies flags the user set explicitly.
func (o *RootOptions) scenario(cmd *cobra.Command, overrides *Scenario) (Scenario, error) {
	scenario := DefaultScenario()
	if o.Config != "" {
		loaded, err := LoadScenario(o.Config)
		if err != nil {
			return scenario, err
		}
		scenario = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("duration") {
		scenario.Duration = overrides.Duration
	}
	if flags.Changed("entities") {
		scenario.Entities = overrides.Entities
	}
	if flags.Changed("workers") {
		scenario.Workers = overrides.Workers
	}
	if flags.Changed("churn") {
		scenario.Churn = overrides.Churn
	}
	if flags.Changed("seed") {
		scenario.Seed = overrides.Seed
	}
	if flags.Changed("profile") {
		scenario.Profile = overrides.Profile
	}
	if flags.Changed("gc-pause-metrics") {
		scenario.GCPauseMetrics = overrides.GCPauseMetrics
	}
	return scenario, scenario.Validate()
}

// bindScenarioFlags registers the scenario override flags on cmd.
func bindScenarioFlags(cmd *cobra.Command, s *Scenario) {
	def := DefaultScenario()
	flags := cmd.Flags()
	flags.DurationVarP(&s.Duration, "duration", "d", def.Duration, "how long the test runs")
	flags.IntVarP(&s.Entities, "entities", "n", def.Entities, "initial number of entities")
	flags.IntVarP(&s.Workers, "workers", "w", def.Workers, "systems run concurrently per stage")
	flags.IntVar(&s.Churn, "churn", def.Churn, "entities spawned and migrated per frame")
	flags.Uint64Var(&s.Seed, "seed", def.Seed, "random seed")
	flags.StringVar(&s.Profile, "profile", def.Profile, "write a profile (cpu|mem)")
	flags.BoolVar(&s.GCPauseMetrics, "gc-pause-metrics", def.GCPauseMetrics, "include GC pause metrics in the report")
}
