package ffmpeg

import (
	"context"
	"fmt"
	"strconv"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/pkg/util"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// Transcoder renders one instruction into a platform-shaped file
type Transcoder struct {
	exec     *Executor
	encoding Encoding
}

// NewTranscoder creates a transcoder with the given encoding settings
func NewTranscoder(e *Executor, enc Encoding) *Transcoder {
	return &Transcoder{exec: e, encoding: enc.withDefaults()}
}

// TranscodeArgs builds the ffmpeg arguments for inst. The source is seeked to
// the instruction start, scaled to cover the platform frame and center-cropped.
func TranscodeArgs(source string, inst clips.RenderInstruction, output string, enc Encoding) []string {
	enc = enc.withDefaults()
	p := inst.Platform

	out := ffmpeggo.KwArgs{
		"t":        util.FormatSeconds(inst.Duration()),
		"c:v":      enc.VideoCodec,
		"preset":   enc.Preset,
		"crf":      strconv.Itoa(enc.CRF),
		"pix_fmt":  DefaultPixFmt,
		"c:a":      enc.AudioCodec,
		"movflags": "+faststart",
	}
	if vf := NewFilterBuilder().Cover(p.Width, p.Height).Build(); vf != "" {
		out["vf"] = vf
	}
	if p.FPS > 0 {
		out["r"] = strconv.FormatFloat(p.FPS, 'f', -1, 64)
	}
	if p.AudioBitrate != "" {
		out["b:a"] = p.AudioBitrate
	}
	if p.Format != "" && p.Format != "mp4" {
		delete(out, "movflags")
	}

	return ffmpeggo.Input(source, ffmpeggo.KwArgs{
		"ss": util.FormatSeconds(inst.Start),
	}).Output(output, out).GetArgs()
}

// Transcode runs one render
func (t *Transcoder) Transcode(ctx context.Context, source string, inst clips.RenderInstruction, output string) error {
	if source == "" || output == "" {
		return fmt.Errorf("source and output paths are required")
	}

	t.exec.logger.Info().
		Str("source", source).
		Str("platform", inst.Platform.Name).
		Dur("start", inst.Start).
		Dur("end", inst.EffectiveEnd).
		Str("output", output).
		Msg("transcoding clip")

	opts := RunOptions{
		Args: TranscodeArgs(source, inst, output, t.encoding),
		ProgressHandler: func(p *Progress) {
			t.exec.logger.Debug().
				Int("frame", p.Frame).
				Str("time", p.Time).
				Str("speed", p.Speed).
				Msg("transcode progress")
		},
	}

	if err := t.exec.Run(ctx, opts); err != nil {
		return fmt.Errorf("transcode %s: %w", output, err)
	}
	return nil
}
