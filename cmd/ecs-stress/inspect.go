package main

import (
	"fmt"
	"io"
	"time"

	"github.com/plus3/archecs/ecs/inspect"
	"github.com/spf13/cobra"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Scenario Scenario
	Frames   int
	Sort     string
	Filter   string
	Page     int
	PerPage  int
	Dump     int
}

var sortColumns = map[string]inspect.ArchetypeColumn{
	"id":         inspect.ByArchetypeID,
	"components": inspect.ByComponents,
	"count":      inspect.ByComponentCount,
	"entities":   inspect.ByEntityCount,
}

func newInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Step the world a few frames and print its contents",
		Long: `Populate the stress world, run a fixed number of frames and print a
storage summary, the archetype table, one page of the entity browser and
component dumps of the first entities on that page.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts)
		},
	}

	bindScenarioFlags(cmd, &opts.Scenario)
	cmd.Flags().IntVar(&opts.Frames, "frames", 10, "frames to run before inspecting")
	cmd.Flags().StringVar(&opts.Sort, "sort", "entities", "archetype sort column (id|components|count|entities)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "entity browser filter text")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "entity browser page, zero-based")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 20, "entities per page")
	cmd.Flags().IntVar(&opts.Dump, "dump", 3, "entities to dump in full")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *InspectOptions) error {
	column, ok := sortColumns[opts.Sort]
	if !ok {
		return fmt.Errorf("invalid sort %q: must be one of id, components, count, entities", opts.Sort)
	}
	scenario, err := opts.scenario(cmd, &opts.Scenario)
	if err != nil {
		return err
	}

	world, err := newWorld(scenario, opts.logger)
	if err != nil {
		return err
	}
	if err := world.Populate(scenario.Entities); err != nil {
		return err
	}

	history := inspect.NewFrameHistory(opts.Frames)
	for range opts.Frames {
		start := time.Now()
		if err := world.Scheduler.Once(1.0 / 60); err != nil {
			opts.logger.Debug("frame failed", "error", err)
		}
		history.Record(time.Since(start))
	}

	return writeInspection(cmd.OutOrStdout(), inspect.New(world.Storage), history, opts, column)
}

func writeInspection(w io.Writer, in *inspect.Inspector, history *inspect.FrameHistory, opts *InspectOptions, column inspect.ArchetypeColumn) error {
	fmt.Fprintln(w, "## Summary")
	if err := in.WriteSummary(w, history); err != nil {
		return err
	}

	fmt.Fprintln(w, "\n## Archetypes")
	if err := in.WriteArchetypes(w, column, column == inspect.ByArchetypeID); err != nil {
		return err
	}

	filter := inspect.EntityFilter{Text: opts.Filter}
	fmt.Fprintln(w, "\n## Entities")
	if err := in.WriteEntities(w, filter, opts.Page, opts.PerPage); err != nil {
		return err
	}

	page := in.Entities(filter, opts.Page, opts.PerPage)
	for _, e := range page.Entities[:min(max(opts.Dump, 0), len(page.Entities))] {
		fmt.Fprintln(w)
		if err := in.WriteEntity(w, e.ID); err != nil {
			return err
		}
	}
	return nil
}
