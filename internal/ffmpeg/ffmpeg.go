// Package ffmpeg wraps the ffmpeg and ffprobe binaries: probing, streaming
// decode for analysis, and platform transcodes.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// stderrTail is how many log lines a RunError keeps
const stderrTail = 8

// transientMarkers are ffmpeg failures worth another attempt
var transientMarkers = []string{
	"Resource temporarily unavailable",
	"Cannot allocate memory",
	"Too many open files",
	"Interrupted system call",
	"Connection reset",
	"Connection timed out",
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New resolves both binaries from PATH
func New(logger zerolog.Logger, threads int) (*Executor, error) {
	return NewWithPaths(logger, "ffmpeg", "ffprobe", threads)
}

// NewWithPaths resolves the given binaries, which may be names or paths.
// Names missing from PATH are looked up in an assets directory next to the
// running executable.
func NewWithPaths(logger zerolog.Logger, ffmpegBin, ffprobeBin string, threads int) (*Executor, error) {
	ffmpegPath, err := resolveBinary(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := resolveBinary(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

func resolveBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err == nil {
		return path, nil
	}
	if filepath.Base(name) != name {
		return "", err
	}

	exe, exeErr := os.Executable()
	if exeErr != nil {
		return "", err
	}
	bundled := filepath.Join(filepath.Dir(exe), "assets", name)
	if runtime.GOOS == "windows" && filepath.Ext(bundled) == "" {
		bundled += ".exe"
	}
	if _, statErr := os.Stat(bundled); statErr != nil {
		return "", err
	}
	return bundled, nil
}

// RunError is a failed ffmpeg invocation with the tail of its log
type RunError struct {
	Err    error
	Stderr string
}

func (e *RunError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg execution failed: %v: %s", e.Err, e.Stderr)
}

func (e *RunError) Unwrap() error { return e.Err }

// Temporary reports failures caused by the host rather than the input
func (e *RunError) Temporary() bool {
	for _, marker := range transientMarkers {
		if strings.Contains(e.Stderr, marker) {
			return true
		}
	}
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) && exitErr.ProcessState != nil {
		// killed by a signal we did not send
		return exitErr.ProcessState.ExitCode() == -1
	}
	return false
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// threads must precede the inputs
	baseArgs := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "info"}
	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}
	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		tail = e.streamOutput(stderr, opts.ProgressHandler, opts.LogHandler)
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RunError{Err: err, Stderr: strings.Join(tail, "\n")}
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamOutput parses ffmpeg output, calls handlers and returns the last log lines
func (e *Executor) streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) []string {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}
	var tail []string

	for scanner.Scan() {
		line := scanner.Text()

		if logHandler != nil {
			logHandler(line)
		}

		key, value, isProgress := parseProgressLine(line)
		if !isProgress {
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
			continue
		}

		switch key {
		case "frame":
			fmt.Sscanf(value, "%d", &progressData.Frame)
		case "fps":
			fmt.Sscanf(value, "%f", &progressData.FPS)
		case "bitrate":
			progressData.Bitrate = value
		case "out_time":
			progressData.Time = value
		case "speed":
			progressData.Speed = value
		case "progress":
			// end of a progress block
			if progressHandler != nil && progressData.Frame > 0 {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		}
	}

	return tail
}

var progressKeys = map[string]bool{
	"frame": true, "fps": true, "bitrate": true, "total_size": true,
	"out_time_us": true, "out_time_ms": true, "out_time": true,
	"dup_frames": true, "drop_frames": true, "speed": true, "progress": true,
}

func parseProgressLine(line string) (string, string, bool) {
	if strings.HasPrefix(line, "stream_") {
		return "", "", true
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok || !progressKeys[key] {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
