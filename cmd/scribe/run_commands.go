package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"scribe/internal/workflow"
)

func newDrainCommand(ctx *commandContext) *cobra.Command {
	var maxJobs int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process every unprocessed backlog row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithLock(cmd, ctx, func(rt *runtime) (workflow.RunSummary, error) {
				if maxJobs > 0 {
					rt.cfg.Workflow.MaxJobsPerRun = maxJobs
				}
				return rt.orch.Drain(cmd.Context())
			})
		},
	}
	cmd.Flags().IntVar(&maxJobs, "max", 0, "Cap the number of rows processed this run")
	return cmd
}

func newExpandCommand(ctx *commandContext) *cobra.Command {
	var skipDrain bool
	var maxKeywords int

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Search due keywords and append new products to the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithLock(cmd, ctx, func(rt *runtime) (workflow.RunSummary, error) {
				if maxKeywords > 0 {
					rt.cfg.Workflow.MaxKeywordsPerRun = maxKeywords
				}
				summary, err := rt.orch.Expand(cmd.Context())
				if err != nil {
					return summary, err
				}
				if skipDrain || summary.Appended == 0 {
					return summary, nil
				}
				printSummary(cmd.OutOrStdout(), summary)
				return rt.orch.Drain(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVar(&skipDrain, "no-drain", false, "Append new rows without processing them")
	cmd.Flags().IntVar(&maxKeywords, "max", 0, "Cap the number of keywords searched this run")
	return cmd
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var slots int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Lay out a day's slot ladder and fill it from the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithLock(cmd, ctx, func(rt *runtime) (workflow.RunSummary, error) {
				if slots > 0 {
					rt.cfg.Scheduler.MaxSlotsPerDay = slots
				}
				return rt.orch.PlanDay(cmd.Context())
			})
		},
	}
	cmd.Flags().IntVar(&slots, "slots", 0, "Number of slots to fill instead of the configured daily cap")
	return cmd
}

func runWithLock(cmd *cobra.Command, ctx *commandContext, run func(*runtime) (workflow.RunSummary, error)) error {
	rt, err := ctx.buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		_ = rt.lock.Release()
	}()

	summary, err := run(rt)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func printSummary(out io.Writer, s workflow.RunSummary) {
	fmt.Fprintf(out, "%s run finished in %s\n", s.Mode, s.Duration.Round(timeRounding))
	rows := [][]string{
		{"Processed", fmt.Sprintf("%d", s.Processed)},
		{"Scheduled", fmt.Sprintf("%d", s.Scheduled)},
		{"Drafted", fmt.Sprintf("%d", s.Drafted)},
		{"Duplicates", fmt.Sprintf("%d", s.Duplicates)},
		{"Skipped", fmt.Sprintf("%d", s.Skipped)},
		{"Failed", fmt.Sprintf("%d", s.Failed)},
	}
	if s.Appended > 0 {
		rows = append(rows, []string{"Appended", fmt.Sprintf("%d", s.Appended)})
	}
	fmt.Fprintln(out, renderTable([]string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}
