package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder assembles a -vf chain. Steps with unusable arguments are
// dropped so callers can chain unconditionally.
type FilterBuilder struct {
	steps []string
}

func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

func (fb *FilterBuilder) add(ok bool, format string, args ...any) *FilterBuilder {
	if ok {
		fb.steps = append(fb.steps, fmt.Sprintf(format, args...))
	}
	return fb
}

// Scale resizes to exactly width x height
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	return fb.add(width > 0 && height > 0, "scale=%d:%d", width, height)
}

// Cover fills the width x height frame, center-cropping whatever overflows
func (fb *FilterBuilder) Cover(width, height int) *FilterBuilder {
	ok := width > 0 && height > 0
	fb.add(ok, "scale=%d:%d:force_original_aspect_ratio=increase", width, height)
	fb.add(ok, "crop=%d:%d", width, height)
	return fb.add(ok, "setsar=1")
}

func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	return fb.add(fps > 0, "fps=%g", fps)
}

// EveryNth keeps frames 0, n, 2n...
func (fb *FilterBuilder) EveryNth(n int) *FilterBuilder {
	return fb.add(n > 1, `select=not(mod(n\,%d))`, n)
}

// Format converts to pixFmt, e.g. "gray" for luma-only decoding
func (fb *FilterBuilder) Format(pixFmt string) *FilterBuilder {
	return fb.add(pixFmt != "", "format=%s", pixFmt)
}

func (fb *FilterBuilder) Build() string {
	return strings.Join(fb.steps, ",")
}
