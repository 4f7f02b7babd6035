package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"subforge/internal/language"
	"subforge/internal/pipeline"
	"subforge/internal/services"
	"subforge/internal/store"
	"subforge/internal/tasklog"
)

const followPollWindow = 2 * time.Second

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var batchID string
	var stages []string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List task history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return ctx.withStore(func(st *store.Store) error {
				records, err := st.List(cmd.Context(), store.ListOptions{Limit: limit, BatchID: batchID, Stages: stages})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if records == nil {
						records = []store.Record{}
					}
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No tasks recorded")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						shortID(record.ID),
						displayPath(record.InputPath),
						record.Workflow,
						language.Describe(record.TargetLanguage),
						colorText(record.Stage, stageKind(record.Stage), colorize),
						taskDuration(record),
						displayPath(record.OutputPath),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Input", "Workflow", "Language", "Stage", "Duration", "Output"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum tasks to list (0 for all)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Only list tasks from this batch")
	cmd.Flags().StringSliceVar(&stages, "stage", nil, "Only list tasks in these stages")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				record, err := lookupTask(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, record)
				}
				pairs := [][2]string{
					{"ID", record.ID},
					{"Batch", record.BatchID},
					{"Workflow", record.Workflow},
					{"Input", record.InputPath},
					{"Language", language.Describe(record.TargetLanguage)},
					{"Stage", record.Stage},
					{"Output", orDash(record.OutputPath)},
					{"Fallback", yesNo(record.Fallback)},
					{"Started", formatTime(record.StartedAt)},
					{"Ended", formatTime(record.EndedAt)},
					{"Duration", taskDuration(*record)},
				}
				if record.Error != "" {
					pairs = append(pairs, [2]string{"Error", fmt.Sprintf("%s (%s)", record.Error, record.ErrorKind)})
				}
				if record.TempAudioPath != "" {
					pairs = append(pairs, [2]string{"Temp audio", record.TempAudioPath})
				}
				if record.TempTranscriptPath != "" {
					pairs = append(pairs, [2]string{"Temp transcript", record.TempTranscriptPath})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDetails(pairs))
				return nil
			})
		},
	}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs TASK_ID",
		Short: "Show the per-task log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			journal, err := tasklog.New(cfg.TaskLogDir())
			if err != nil {
				return err
			}
			taskID := args[0]
			entries, offset, err := journal.ReadFrom(taskID, 0)
			if err != nil && !(follow && errors.Is(err, services.ErrNotFound)) {
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("no log recorded for task %s", taskID)
				}
				return err
			}
			if err := printLogEntries(cmd, ctx, entries); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return ctx.withStore(func(st *store.Store) error {
				return followLog(cmd, ctx, st, journal, taskID, offset)
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing entries until the task finishes")
	return cmd
}

func followLog(cmd *cobra.Command, ctx *commandContext, st *store.Store, journal *tasklog.Logger, taskID string, offset int64) error {
	for {
		entries, next, err := journal.Wait(cmd.Context(), taskID, offset, followPollWindow)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		offset = next
		if err := printLogEntries(cmd, ctx, entries); err != nil {
			return err
		}
		if len(entries) > 0 {
			continue
		}
		record, err := st.Get(cmd.Context(), taskID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			return err
		}
		if pipeline.Stage(record.Stage).IsTerminal() {
			// Drain anything written between the last read and the terminal update.
			rest, _, err := journal.ReadFrom(taskID, offset)
			if err != nil && !errors.Is(err, services.ErrNotFound) {
				return err
			}
			return printLogEntries(cmd, ctx, rest)
		}
	}
}

func printLogEntries(cmd *cobra.Command, ctx *commandContext, entries []tasklog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx.JSONMode() {
		return writeJSONLines(cmd, entries)
	}
	out := cmd.OutOrStdout()
	for _, entry := range entries {
		fmt.Fprintf(out, "%s  %-13s %s\n", entry.Timestamp.Local().Format("15:04:05"), entry.Category, entry.Message)
	}
	return nil
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a task queued or running in the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, addr, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("task %s is not active in the daemon", args[0])
				}
				return wrapClientError(err, addr)
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]string{"taskId": args[0], "status": "cancel_requested"})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for task %s\n", args[0])
			return nil
		},
	}
}

func lookupTask(ctx context.Context, st *store.Store, id string) (*store.Record, error) {
	record, err := st.Get(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return record, err
}

func taskDuration(record store.Record) string {
	d := record.Duration()
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
	}
	return d.Round(time.Second).String()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
