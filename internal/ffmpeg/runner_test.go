package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"subforge/internal/ffmpeg"
	"subforge/internal/services"
	"subforge/internal/testsupport"
)

const successScript = `for last; do :; done
echo "out_time_ms=500000" >&2
echo "progress=continue" >&2
echo "out_time_ms=1000000" >&2
echo "progress=end" >&2
printf 'RIFFWAVE' > "$last"`

func TestExtractArgsAreFixed(t *testing.T) {
	got := ffmpeg.ExtractArgs("/in/movie.mkv", "/scratch/t1/movie.wav")
	want := []string{
		"-y", "-hide_banner", "-loglevel", "error", "-progress", "pipe:2", "-nostats",
		"-i", "/in/movie.mkv", "-vn", "-sn", "-dn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
		"/scratch/t1/movie.wav",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args\n got: %v\nwant: %v", got, want)
	}
}

func TestExtractWritesOutputAndReportsProgress(t *testing.T) {
	binDir := t.TempDir()
	binary := testsupport.WriteScript(t, binDir, "ffmpeg", successScript)
	output := filepath.Join(t.TempDir(), "task", "movie.wav")

	var progress []float64
	runner := ffmpeg.NewRunner(binary, "")
	got, err := runner.Extract(context.Background(), ffmpeg.ExtractRequest{
		Input:    "/media/movie.mkv",
		Output:   output,
		Duration: 2 * time.Second,
		Progress: func(p float64) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if got != output {
		t.Fatalf("expected output %s, got %s", output, got)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	want := []float64{25, 50, 100}
	if !reflect.DeepEqual(progress, want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
}

func TestExtractProbesDurationWhenUnknown(t *testing.T) {
	binDir := t.TempDir()
	binary := testsupport.WriteScript(t, binDir, "ffmpeg", successScript)
	probe := testsupport.WriteScript(t, binDir, "ffprobe", `echo '{"format":{"duration":"4.000000"}}'`)

	var progress []float64
	runner := ffmpeg.NewRunner(binary, probe)
	_, err := runner.Extract(context.Background(), ffmpeg.ExtractRequest{
		Input:    "/media/movie.mkv",
		Output:   filepath.Join(t.TempDir(), "movie.wav"),
		Progress: func(p float64) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(progress) == 0 || progress[0] != 12.5 {
		t.Fatalf("expected probed progress starting at 12.5, got %v", progress)
	}
}

func TestExtractNonZeroExitCarriesStderrTail(t *testing.T) {
	binary := testsupport.WriteScript(t, t.TempDir(), "ffmpeg", `i=1
while [ $i -le 30 ]; do echo "diagnostic line $i" >&2; i=$((i+1)); done
exit 3`)

	runner := ffmpeg.NewRunner(binary, "")
	_, err := runner.Extract(context.Background(), ffmpeg.ExtractRequest{
		Input:  "/media/broken.mkv",
		Output: filepath.Join(t.TempDir(), "broken.wav"),
	})
	var execErr *services.ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if !errors.Is(err, services.ErrProcessExecution) {
		t.Fatalf("expected ErrProcessExecution marker, got %v", err)
	}
	if execErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", execErr.ExitCode)
	}
	lines := strings.Split(execErr.StderrTail, "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 tail lines, got %d", len(lines))
	}
	if lines[0] != "diagnostic line 11" || lines[19] != "diagnostic line 30" {
		t.Fatalf("unexpected tail bounds %q .. %q", lines[0], lines[19])
	}
}

func TestExtractSurvivesOversizedStderrLine(t *testing.T) {
	binary := testsupport.WriteScript(t, t.TempDir(), "ffmpeg", `for last; do :; done
head -c 2097152 /dev/zero | tr '\0' 'x' >&2
echo >&2
i=1
while [ $i -le 2000 ]; do echo "trailing diagnostic line $i" >&2; i=$((i+1)); done
printf 'RIFFWAVE' > "$last"`)
	output := filepath.Join(t.TempDir(), "long.wav")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	got, err := ffmpeg.NewRunner(binary, "").Extract(ctx, ffmpeg.ExtractRequest{
		Input:  "/media/long.mkv",
		Output: output,
	})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if got != output {
		t.Fatalf("expected output %s, got %s", output, got)
	}
}

func TestExtractMissingBinaryIsSpawnError(t *testing.T) {
	runner := ffmpeg.NewRunner(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "")
	_, err := runner.Extract(context.Background(), ffmpeg.ExtractRequest{
		Input:  "/media/movie.mkv",
		Output: filepath.Join(t.TempDir(), "movie.wav"),
	})
	if !errors.Is(err, services.ErrProcessSpawn) {
		t.Fatalf("expected ErrProcessSpawn, got %v", err)
	}
}

func TestExtractUsesCommandFactory(t *testing.T) {
	binary := testsupport.WriteScript(t, t.TempDir(), "ffmpeg", successScript)
	var gotName string
	var gotArgs []string
	runner := ffmpeg.NewRunner("ffmpeg-custom", "", ffmpeg.WithCommandFactory(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return exec.CommandContext(ctx, binary, args...)
	}))

	output := filepath.Join(t.TempDir(), "clip.wav")
	if _, err := runner.Extract(context.Background(), ffmpeg.ExtractRequest{Input: "/media/clip.mp4", Output: output}); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if gotName != "ffmpeg-custom" {
		t.Fatalf("expected configured binary name, got %q", gotName)
	}
	if gotArgs[len(gotArgs)-1] != output {
		t.Fatalf("expected output as final arg, got %v", gotArgs)
	}
}

func TestExtractCanceledContext(t *testing.T) {
	binary := testsupport.WriteScript(t, t.TempDir(), "ffmpeg", "exec sleep 5")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	runner := ffmpeg.NewRunner(binary, "")
	_, err := runner.Extract(ctx, ffmpeg.ExtractRequest{
		Input:  "/media/movie.mkv",
		Output: filepath.Join(t.TempDir(), "movie.wav"),
	})
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestPercentClamps(t *testing.T) {
	if got := ffmpeg.Percent(3*time.Second, 2*time.Second); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
	if got := ffmpeg.Percent(time.Second, 0); got != 0 {
		t.Fatalf("expected 0 for unknown total, got %v", got)
	}
}
