package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"scribe/internal/catalog"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiCyan  = "\x1b[36m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backlog status counts and recent rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			jobs, err := rt.store.Jobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("read backlog: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			printStatusCounts(out, jobs, colorize)
			printRecentRows(out, jobs, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent rows to show")
	return cmd
}

func printStatusCounts(out io.Writer, jobs []catalog.Job, colorize bool) {
	counts := map[catalog.Status]int{}
	unprocessed := 0
	for _, job := range jobs {
		if job.Unprocessed() {
			unprocessed++
			continue
		}
		counts[job.Status]++
	}

	rows := [][]string{
		{statusLabel("未処理", ansiCyan, colorize), fmt.Sprintf("%d", unprocessed)},
		{statusLabel(string(catalog.StatusScheduled), ansiGreen, colorize), fmt.Sprintf("%d", counts[catalog.StatusScheduled])},
		{string(catalog.StatusDraft), fmt.Sprintf("%d", counts[catalog.StatusDraft])},
		{string(catalog.StatusDuplicate), fmt.Sprintf("%d", counts[catalog.StatusDuplicate])},
		{statusLabel(string(catalog.StatusError), ansiRed, colorize), fmt.Sprintf("%d", counts[catalog.StatusError])},
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Rows"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printRecentRows(out io.Writer, jobs []catalog.Job, limit int) {
	if limit <= 0 || len(jobs) == 0 {
		return
	}
	start := len(jobs) - limit
	if start < 0 {
		start = 0
	}

	rows := make([][]string, 0, limit)
	for _, job := range jobs[start:] {
		status := job.RawStatus
		if status == "" {
			status = "未処理"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.Row),
			status,
			truncate(job.Title, 40),
			job.ScheduledAt,
			truncate(job.ErrorDetail, 40),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Row", "Status", "Title", "Slot", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
}

func statusLabel(label, color string, colorize bool) string {
	if !colorize || color == "" {
		return label
	}
	return color + label + ansiReset
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
