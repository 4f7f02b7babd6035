package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// progressKeys are the key=value fields ffmpeg writes with -progress.
var progressKeys = map[string]struct{}{
	"frame": {}, "fps": {}, "bitrate": {}, "total_size": {},
	"out_time_us": {}, "out_time_ms": {}, "out_time": {},
	"dup_frames": {}, "drop_frames": {}, "speed": {}, "progress": {},
}

type progressTracker struct {
	duration time.Duration
	report   func(float64)
	last     float64
}

// consume reports whether line was a progress field. Percentages are only
// reported when they increase.
func (p *progressTracker) consume(line string) bool {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return false
	}
	key = strings.TrimSpace(key)
	if _, known := progressKeys[key]; !known && !strings.HasPrefix(key, "stream_") {
		return false
	}
	switch key {
	case "out_time_ms", "out_time_us":
		// ffmpeg writes microseconds under both keys.
		micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err == nil {
			p.observe(time.Duration(micros) * time.Microsecond)
		}
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.finish()
		}
	}
	return true
}

func (p *progressTracker) observe(position time.Duration) {
	if p.report == nil || p.duration <= 0 || position <= 0 {
		return
	}
	p.emit(Percent(position, p.duration))
}

func (p *progressTracker) finish() {
	if p.report == nil || p.duration <= 0 {
		return
	}
	p.emit(100)
}

func (p *progressTracker) emit(percent float64) {
	if percent <= p.last {
		return
	}
	p.last = percent
	p.report(percent)
}

// Percent converts a position within total into a percentage clamped to
// [0, 100].
func Percent(position, total time.Duration) float64 {
	if total <= 0 || position <= 0 {
		return 0
	}
	pct := float64(position) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
