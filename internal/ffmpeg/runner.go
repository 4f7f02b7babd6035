package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"subforge/internal/logging"
	"subforge/internal/services"
)

const (
	// DefaultBinary is resolved from PATH when no binary is configured.
	DefaultBinary = "ffmpeg"
	// DefaultProbeBinary is resolved from PATH when no ffprobe is configured.
	DefaultProbeBinary = "ffprobe"

	stderrTailLines = 20
	stage           = "extracting"
)

// CommandFactory builds the command for one invocation. Tests replace it to
// observe arguments or redirect execution.
type CommandFactory func(ctx context.Context, name string, args ...string) *exec.Cmd

// Runner extracts transcription-ready audio from media files.
type Runner struct {
	binary      string
	probeBinary string
	command     CommandFactory
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithCommandFactory sets a custom command constructor (for testing).
func WithCommandFactory(factory CommandFactory) Option {
	return func(r *Runner) {
		if factory != nil {
			r.command = factory
		}
	}
}

// WithLogger attaches a logger for diagnostic output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner constructs a Runner for the given binaries. Empty names fall back
// to ffmpeg and ffprobe on PATH.
func NewRunner(binary, probeBinary string, opts ...Option) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	probeBinary = strings.TrimSpace(probeBinary)
	if probeBinary == "" {
		probeBinary = DefaultProbeBinary
	}
	r := &Runner{
		binary:      binary,
		probeBinary: probeBinary,
		command:     exec.CommandContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = logging.NewComponentLogger(r.logger, "ffmpeg")
	return r
}

// ExtractRequest describes one extraction.
type ExtractRequest struct {
	Input  string
	Output string
	// Duration of the input, used to turn ffmpeg's out_time into a percentage.
	// When zero and Progress is set, the runner probes the input first.
	Duration time.Duration
	// Progress receives percentages in [0, 100]. Optional.
	Progress func(percent float64)
}

// ExtractArgs returns the fixed ffmpeg argument list for an extraction.
func ExtractArgs(input, output string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-progress", "pipe:2",
		"-nostats",
		"-i", input,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		output,
	}
}

// Extract runs ffmpeg and returns the output path on a zero exit. Spawn
// failures are tagged services.ErrProcessSpawn; non-zero exits return a
// *services.ExecError carrying the last lines of stderr.
func (r *Runner) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	input := strings.TrimSpace(req.Input)
	output := strings.TrimSpace(req.Output)
	if input == "" || output == "" {
		return "", services.Wrap(services.ErrValidation, stage, "extract audio", "input and output paths are required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", services.Wrap(services.ErrFilesystem, stage, "create scratch directory", filepath.Dir(output), err)
	}

	duration := req.Duration
	if req.Progress != nil && duration <= 0 {
		probed, err := r.Probe(ctx, input)
		if err != nil {
			r.logger.Debug("duration probe failed; progress disabled",
				logging.String("input", input),
				logging.Error(err),
			)
		}
		duration = probed
	}

	cmd := r.command(ctx, r.binary, ExtractArgs(input, output)...)
	cmd.Stdout = io.Discard
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", services.Wrap(services.ErrProcessSpawn, stage, "attach stderr", r.binary, err)
	}
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return "", services.Wrap(services.ErrProcessSpawn, stage, "start ffmpeg", r.binary, err)
	}

	tail := newLineTail(stderrTailLines)
	tracker := progressTracker{duration: duration, report: req.Progress}
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if tracker.consume(line) {
			continue
		}
		tail.add(line)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Debug("ffmpeg stderr scan stopped; discarding remainder",
			logging.String("input", input),
			logging.Error(err),
		)
		_, _ = io.Copy(io.Discard, stderr)
	}
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", services.Canceled(stage, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return "", &services.ExecError{
				Command:    filepath.Base(r.binary),
				ExitCode:   exitErr.ExitCode(),
				StderrTail: tail.String(),
			}
		}
		return "", services.Wrap(services.ErrProcessSpawn, stage, "wait for ffmpeg", r.binary, waitErr)
	}

	info, err := os.Stat(output)
	if err != nil {
		return "", services.Wrap(services.ErrFilesystem, stage, "stat extracted audio", output, err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrProcessExecution, stage, "extract audio", "ffmpeg produced an empty file", nil)
	}
	tracker.finish()

	r.logger.Debug("audio extracted",
		logging.String("input", input),
		logging.String("output", output),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return output, nil
}

// lineTail keeps the most recent lines of process output.
type lineTail struct {
	limit int
	lines []string
}

func newLineTail(limit int) *lineTail {
	return &lineTail{limit: limit, lines: make([]string, 0, limit)}
}

func (t *lineTail) add(line string) {
	if len(t.lines) == t.limit {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.limit-1]
	}
	t.lines = append(t.lines, line)
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
