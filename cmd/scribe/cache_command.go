package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "AI response cache utilities",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts and age",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.cache.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read cache stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if !rt.cfg.EnrichCache.Enabled {
				fmt.Fprintln(out, "Cache is disabled")
				return nil
			}
			oldest := "-"
			if !stats.Oldest.IsZero() {
				oldest = fmt.Sprintf("%s (%s ago)", stats.Oldest.Local().Format("2006/01/02 15:04"), time.Since(stats.Oldest).Round(time.Minute))
			}
			rows := [][]string{
				{"Path", stats.Path},
				{"Entries", fmt.Sprintf("%d", stats.Entries)},
				{"Oldest entry", oldest},
			}
			fmt.Fprintln(out, renderTable([]string{"Cache", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete cache entries older than the configured TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.cache.Prune(cmd.Context())
			if err != nil {
				return fmt.Errorf("prune cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries\n", removed)
			return nil
		},
	}
}
