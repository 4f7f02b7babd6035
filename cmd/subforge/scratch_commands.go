package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"subforge/internal/logging"
	"subforge/internal/staging"
	"subforge/internal/store"
)

var activeStages = []string{"pending", "extracting", "transcribing", "translating"}

func newScratchCommand(ctx *commandContext) *cobra.Command {
	scratchCmd := &cobra.Command{
		Use:   "scratch",
		Short: "Manage per-task scratch directories",
	}
	scratchCmd.AddCommand(newScratchListCommand(ctx))
	scratchCmd.AddCommand(newScratchCleanCommand(ctx))
	return scratchCmd
}

func newScratchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scratch directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scratchDir := cfg.Paths.ScratchDir
			dirs, err := staging.ListDirectories(scratchDir)
			if err != nil {
				return fmt.Errorf("list scratch directories: %w", err)
			}

			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
			}
			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"scratch_dir":      scratchDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No scratch directories found")
				return nil
			}
			fmt.Fprintf(out, "Scratch directory: %s\n\n", scratchDir)
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{
					shortID(dir.TaskID),
					formatDuration(time.Since(dir.ModTime)),
					fmt.Sprintf("%d", dir.Files),
					formatBytes(dir.Size),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Task", "Age", "Files", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), formatBytes(totalSize))
			return nil
		},
	}
}

func newScratchCleanCommand(ctx *commandContext) *cobra.Command {
	var staleOnly bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove scratch directories of finished tasks",
		Long: `Remove scratch directories that no unfinished task owns.

Tasks still pending or in an active stage in the history database keep their
directories. With --stale, only directories older than
workflow.scratch_retention_hours are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()

			var result staging.CleanStaleResult
			label := "inactive"
			if staleOnly {
				label = "stale"
				result = staging.CleanStale(cmd.Context(), cfg.Paths.ScratchDir, cfg.ScratchRetention(), logger)
			} else {
				err := ctx.withStore(func(st *store.Store) error {
					records, err := st.List(cmd.Context(), store.ListOptions{Stages: activeStages})
					if err != nil {
						return err
					}
					active := make(map[string]struct{}, len(records))
					for _, record := range records {
						active[record.ID] = struct{}{}
					}
					result = staging.CleanInactive(cmd.Context(), cfg.Paths.ScratchDir, active, logger)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if ctx.JSONMode() {
				return writeCleanJSON(cmd, result)
			}
			printCleanResult(cmd, result, label)
			return nil
		},
	}
	cmd.Flags().BoolVar(&staleOnly, "stale", false, "Only remove directories older than the scratch retention")
	return cmd
}

func printCleanResult(cmd *cobra.Command, result staging.CleanStaleResult, label string) {
	out := cmd.OutOrStdout()
	switch {
	case len(result.Removed) == 0 && len(result.Errors) == 0:
		fmt.Fprintf(out, "No %s scratch directories to clean\n", label)
	case len(result.Errors) > 0:
		fmt.Fprintf(out, "Removed %d %s scratch directories, %d errors\n", len(result.Removed), label, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
	default:
		fmt.Fprintf(out, "Removed %d %s scratch directories\n", len(result.Removed), label)
	}
}

func writeCleanJSON(cmd *cobra.Command, result staging.CleanStaleResult) error {
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
	}
	removed := result.Removed
	if removed == nil {
		removed = []string{}
	}
	return writeJSON(cmd, map[string]any{
		"removed": removed,
		"errors":  errs,
	})
}
