package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCommand(rootOpts *RootOptions) *cobra.Command {
	overrides := &Scenario{}
	cmd := &cobra.Command{
		Use:           "plan",
		Short:         "Print the stage plan of the stress systems",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := rootOpts.scenario(cmd, overrides)
			if err != nil {
				return err
			}
			world, err := newWorld(scenario, rootOpts.logger)
			if err != nil {
				return err
			}
			schedule, err := world.Scheduler.BuildSchedule()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), schedule.String())
			return err
		},
	}
	bindScenarioFlags(cmd, overrides)
	return cmd
}
