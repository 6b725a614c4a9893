package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as HH:MM:SS.mmm. Negative durations clamp to zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / int64(time.Hour/time.Millisecond)
	ms -= h * int64(time.Hour/time.Millisecond)
	m := ms / int64(time.Minute/time.Millisecond)
	ms -= m * int64(time.Minute/time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, ms/1000, ms%1000)
}

// FormatSeconds renders d as decimal seconds with millisecond precision,
// the form ffmpeg takes for -ss and -t
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// ParseFrameRate reads an ffprobe rate such as "30000/1001" or "25".
// Anything unparseable or with a zero denominator yields 0.
func ParseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		den = "1"
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}
