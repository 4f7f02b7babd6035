package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subforge/internal/deps"
	"subforge/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries, directories, and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			checks := preflight.RunAll(cmd.Context(), cfg)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, map[string]any{"binaries": statuses, "checks": checks}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					state := colorText("ok", statusOK, colorize)
					detail := status.Path
					if !status.Available {
						kind := statusError
						if status.Optional {
							kind = statusWarn
						}
						state = colorText("missing", kind, colorize)
						detail = status.Detail
					}
					required := "required"
					if status.Optional {
						required = "optional"
					}
					rows = append(rows, []string{status.Name, required, state, detail})
				}
				fmt.Fprint(out, renderTable([]string{"Binary", "Need", "State", "Detail"}, rows, nil))
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Checks", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, result := range checks {
					fmt.Fprintln(out, renderStatusLine(result.Name, statusKindFromPassed(result.Passed), result.Detail, colorize))
				}
			}

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required dependencies missing", len(missing))
			}
			return nil
		},
	}
}
