package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"subforge/internal/config"
	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/manifest"
	"subforge/internal/pipeline"
	"subforge/internal/store"
	"subforge/internal/tasklog"
	"subforge/internal/workflow"
)

type runOptions struct {
	language     string
	languageSet  bool
	workflow     string
	concurrency  int
	outputDir    string
	manifestPath string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [FILE...]",
		Short: "Generate subtitles for media files in the foreground",
		Long: `Run a batch in this process and print progress as tasks advance.

Video inputs are transcribed and, when a target language is set, translated.
Subtitle inputs (--workflow subtitle) are translated directly. Inputs may also
come from a YAML manifest (--manifest). The command exits non-zero when any
task fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.languageSet = cmd.Flags().Changed("lang")
			batchCfg, specs, err := resolveRunBatch(cfg, args, opts)
			if err != nil {
				return err
			}
			batch, err := workflow.NewBatch(batchCfg, specs)
			if err != nil {
				return err
			}
			return runBatch(cmd, ctx, cfg, batch)
		},
	}

	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "Target language (empty transcribes only)")
	cmd.Flags().StringVarP(&opts.workflow, "workflow", "w", string(pipeline.WorkflowVideo), "Workflow for FILE arguments: video or subtitle")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "Maximum tasks in an active stage at once")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Directory for generated subtitles")
	cmd.Flags().StringVarP(&opts.manifestPath, "manifest", "m", "", "YAML batch manifest")
	return cmd
}

// resolveRunBatch merges configuration, manifest, and flag values. Per-task
// manifest values win over manifest defaults, which win over flags, which win
// over configuration.
func resolveRunBatch(cfg *config.Config, args []string, opts runOptions) (workflow.BatchConfig, []workflow.TaskSpec, error) {
	batchCfg := workflow.BatchDefaults(cfg)
	lang := cfg.Workflow.TargetLanguage
	if opts.languageSet {
		lang = strings.TrimSpace(opts.language)
	}
	if opts.outputDir != "" {
		out, err := config.ExpandPath(opts.outputDir)
		if err != nil {
			return batchCfg, nil, fmt.Errorf("resolve output directory: %w", err)
		}
		batchCfg.OutputDir = out
	}
	if opts.concurrency < 0 {
		return batchCfg, nil, fmt.Errorf("concurrency must be positive")
	}
	if opts.concurrency > 0 {
		batchCfg.Concurrency = opts.concurrency
	}

	var specs []workflow.TaskSpec
	if opts.manifestPath != "" {
		m, err := manifest.Load(opts.manifestPath)
		if err != nil {
			return batchCfg, nil, err
		}
		out, err := m.Output(batchCfg.OutputDir)
		if err != nil {
			return batchCfg, nil, err
		}
		batchCfg.OutputDir = out
		if m.Concurrency > 0 && opts.concurrency == 0 {
			batchCfg.Concurrency = m.Concurrency
		}
		for _, spec := range m.Specs() {
			if spec.TargetLanguage == "" {
				spec.TargetLanguage = lang
			}
			specs = append(specs, spec)
		}
	}

	for _, arg := range args {
		input, err := filepath.Abs(arg)
		if err != nil {
			return batchCfg, nil, fmt.Errorf("resolve %q: %w", arg, err)
		}
		specs = append(specs, workflow.TaskSpec{
			InputPath:      input,
			Workflow:       pipeline.Workflow(opts.workflow),
			TargetLanguage: lang,
		})
	}
	if len(specs) == 0 {
		return batchCfg, nil, fmt.Errorf("no inputs: pass FILE arguments or --manifest")
	}
	return batchCfg, specs, nil
}

func runBatch(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, batch *workflow.Batch) error {
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       cfg.Logging.Level,
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "subforge.log")},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task history: %w", err)
	}
	defer st.Close()
	journal, err := tasklog.New(cfg.TaskLogDir())
	if err != nil {
		return err
	}
	factory, err := ctx.buildFactory(cfg, journal, logger)
	if err != nil {
		return fmt.Errorf("configure pipeline: %w", err)
	}

	var sinks []events.Sink
	if !ctx.JSONMode() {
		out := cmd.OutOrStdout()
		sinks = append(sinks, newEventPrinter(out, shouldColorize(out), batch))
	}
	sinks = append(sinks, store.NewRecorder(st, logger), events.NewLogSink(logger))
	scheduler := workflow.NewScheduler(factory,
		workflow.WithLogger(logger),
		workflow.WithSink(events.NewFanout(sinks...)),
	)

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	report, err := scheduler.Run(runCtx, batch)
	if err != nil {
		return err
	}

	if ctx.JSONMode() {
		if err := writeJSON(cmd, map[string]any{
			"batchId": report.BatchID,
			"summary": report.Summary,
			"tasks":   report.Tasks,
		}); err != nil {
			return err
		}
	}
	if report.Failed() {
		return fmt.Errorf("%d of %d tasks failed", report.Summary.Failed, report.Summary.Total)
	}
	return nil
}
