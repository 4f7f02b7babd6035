package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"subforge/internal/services"
)

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the container duration reported by ffprobe.
func (r *Runner) Probe(ctx context.Context, path string) (time.Duration, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, services.Wrap(services.ErrValidation, stage, "probe", "empty path", nil)
	}
	cmd := r.command(ctx, r.probeBinary, "-v", "error", "-hide_banner", "-show_entries", "format=duration", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe %s: no duration reported", path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
