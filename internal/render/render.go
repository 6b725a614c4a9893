// Package render turns render instructions into files on disk.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/retry"
	"github.com/keagan/fastcut/pkg/util"
	"github.com/rs/zerolog"
)

// Kind classifies render failures
type Kind int

const (
	Transient Kind = iota + 1
	Permanent
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// ErrCancelled marks instructions that were never started because the run was cancelled
var ErrCancelled = errors.New("render cancelled")

// Error is a failed render of one instruction
type Error struct {
	Platform string
	Output   string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s for %s (%s, %d attempts): %v", e.Output, e.Platform, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) Temporary() bool { return e.Kind == Transient }

// Transcoder produces one platform-shaped clip from a source file
type Transcoder interface {
	Transcode(ctx context.Context, source string, inst clips.RenderInstruction, output string) error
}

// Config bounds each render
type Config struct {
	OutputDir string
	// Timeout covers all attempts of one instruction
	Timeout time.Duration
	Retry   retry.Policy
}

// Executor renders instructions with retry and a per-instruction deadline
type Executor struct {
	logger     zerolog.Logger
	transcoder Transcoder
	config     Config
}

func NewExecutor(logger zerolog.Logger, t Transcoder, cfg Config) *Executor {
	return &Executor{
		logger:     logger.With().Str("component", "render").Logger(),
		transcoder: t,
		config:     cfg,
	}
}

// OutputPath returns <dir>/<platform>/<index>_<name>_clip_<rank>_<platform>.<format>
func OutputPath(dir string, inst clips.RenderInstruction) string {
	c, p := inst.Candidate, inst.Platform
	format := p.Format
	if format == "" {
		format = "mp4"
	}
	name := fmt.Sprintf("%03d_%s_clip_%d_%s.%s", c.Source.Index, c.Source.Name(), c.Rank, p.Name, format)
	return filepath.Join(dir, p.Name, name)
}

// Render runs one instruction to completion. Failures are reported in the
// returned record, never as a panic or a separate error.
func (e *Executor) Render(ctx context.Context, source string, inst clips.RenderInstruction) clips.RenderedClip {
	started := time.Now()
	output := OutputPath(e.config.OutputDir, inst)
	rec := clips.RenderedClip{Instruction: inst, Output: output}

	fail := func(kind Kind, attempts int, err error) clips.RenderedClip {
		_ = os.Remove(output)
		rec.Err = &Error{Platform: inst.Platform.Name, Output: output, Kind: kind, Attempts: attempts, Err: err}
		rec.Attempts = attempts
		rec.Elapsed = time.Since(started)
		e.logger.Warn().Err(rec.Err).Str("platform", inst.Platform.Name).Int("rank", inst.Candidate.Rank).Msg("render failed")
		return rec
	}

	if err := util.EnsureDir(filepath.Dir(output)); err != nil {
		return fail(Permanent, 0, fmt.Errorf("failed to create output directory: %w", err))
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	policy := e.config.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		e.logger.Warn().
			Err(err).
			Str("platform", inst.Platform.Name).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("render attempt failed, retrying")
	}

	res := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, e.transcoder.Transcode(ctx, source, inst, output)
	})

	switch res.Outcome {
	case retry.Ok:
	case retry.TransientErr:
		return fail(Transient, res.Attempts, res.Err)
	default:
		err := res.Err
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.config.Timeout, err)
		}
		return fail(Permanent, res.Attempts, err)
	}

	rec.Success = true
	rec.Attempts = res.Attempts
	rec.Elapsed = time.Since(started)

	e.logger.Info().
		Str("platform", inst.Platform.Name).
		Int("rank", inst.Candidate.Rank).
		Str("output", output).
		Dur("elapsed", rec.Elapsed).
		Msg("clip rendered")
	return rec
}

// Cancelled records an instruction that was never submitted
func Cancelled(dir string, inst clips.RenderInstruction) clips.RenderedClip {
	output := OutputPath(dir, inst)
	return clips.RenderedClip{
		Instruction: inst,
		Output:      output,
		Err:         &Error{Platform: inst.Platform.Name, Output: output, Kind: Permanent, Err: ErrCancelled},
	}
}
