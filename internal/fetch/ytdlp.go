package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/rs/zerolog"
)

// DefaultFormat keeps downloads at or below 720p
const DefaultFormat = "best[height<=720]/best"

// DownloadPrefix marks files created by the downloader
const DownloadPrefix = "fastcut_original_"

// ErrTooShort marks remote videos skipped by the minimum duration filter
var ErrTooShort = errors.New("video shorter than the minimum duration")

// filteredMarker is printed by yt-dlp when --match-filter rejects a video
const filteredMarker = "does not pass filter"

var videoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// permanentMarkers are yt-dlp messages that will not change on retry
var permanentMarkers = []string{
	"Video unavailable",
	"Private video",
	"This video is private",
	"members-only",
	"Sign in to confirm your age",
	"HTTP Error 401",
	"HTTP Error 403",
	"HTTP Error 404",
	"Unsupported URL",
	"is not a valid URL",
	"copyright",
	"has been removed",
}

// YtDlp downloads remote videos with the yt-dlp binary
type YtDlp struct {
	logger zerolog.Logger
	binary string
	dir    string
	format string
	// Reuse returns an earlier download of the same video instead of fetching again
	Reuse bool
	// MinDuration skips shorter videos without downloading them
	MinDuration time.Duration
}

// NewYtDlp creates a downloader writing into dir
func NewYtDlp(logger zerolog.Logger, binary, dir, format string) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	if format == "" {
		format = DefaultFormat
	}
	return &YtDlp{
		logger: logger.With().Str("component", "ytdlp").Logger(),
		binary: binary,
		dir:    dir,
		format: format,
	}
}

// URL expands bare video ids
func URL(descriptor string) string {
	if videoID.MatchString(descriptor) {
		return "https://www.youtube.com/watch?v=" + descriptor
	}
	return descriptor
}

// Fetch downloads one video and returns its path
func (y *YtDlp) Fetch(ctx context.Context, item clips.SourceItem) (Result, error) {
	if y.Reuse {
		if path, ok := y.existing(item.Descriptor); ok {
			y.logger.Info().Str("source", item.Descriptor).Str("path", path).Msg("reusing download")
			return Result{Path: path}, nil
		}
	}

	// The item index keeps two items naming the same video on separate files
	template := filepath.Join(y.dir, fmt.Sprintf("%s%%(id)s.%d.%%(ext)s", DownloadPrefix, item.Index))
	args := []string{
		"-f", y.format,
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"-o", template,
		"--print", "after_move:filepath",
	}
	if y.MinDuration > 0 {
		args = append(args, "--match-filter", fmt.Sprintf("duration >= %d", int(y.MinDuration.Seconds())))
	}
	args = append(args, URL(item.Descriptor))

	y.logger.Info().Str("source", item.Descriptor).Msg("downloading")

	stdout, stderr, err := y.run(ctx, args)
	if err != nil {
		return Result{}, y.classify(item.Descriptor, err)
	}

	path := lastLine(stdout)
	// --print keeps yt-dlp quiet, so a filtered video may only show up as no output
	filtered := strings.Contains(stdout, filteredMarker) || strings.Contains(stderr, filteredMarker)
	if filtered || (path == "" && y.MinDuration > 0) {
		y.logger.Info().Str("source", item.Descriptor).Dur("min_duration", y.MinDuration).Msg("skipping short video")
		return Result{}, &Error{Source: item.Descriptor, Kind: Permanent, Err: fmt.Errorf("%w (%s)", ErrTooShort, y.MinDuration)}
	}
	if path == "" {
		return Result{}, &Error{Source: item.Descriptor, Kind: Permanent, Err: errors.New("yt-dlp reported no output file")}
	}

	y.logger.Info().Str("source", item.Descriptor).Str("path", path).Msg("download complete")
	return Result{Path: path, Downloaded: true}, nil
}

// ListChannel returns up to limit video ids from a channel's uploads
func (y *YtDlp) ListChannel(ctx context.Context, channelID string, limit int) ([]string, error) {
	url := fmt.Sprintf("https://www.youtube.com/channel/%s/videos", channelID)
	args := []string{"--flat-playlist", "--print", "id"}
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	args = append(args, url)

	stdout, _, err := y.run(ctx, args)
	if err != nil {
		return nil, y.classify(channelID, err)
	}

	var ids []string
	for _, line := range strings.Split(stdout, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}

	y.logger.Info().Str("channel", channelID).Int("videos", len(ids)).Msg("channel listed")
	return ids, nil
}

// runError carries the stderr of a failed invocation
type runError struct {
	err    error
	stderr string
}

func (e *runError) Error() string {
	if e.stderr == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%v: %s", e.err, e.stderr)
}

func (e *runError) Unwrap() error { return e.err }

func (y *YtDlp) run(ctx context.Context, args []string) (string, string, error) {
	y.logger.Debug().Str("cmd", y.binary).Strs("args", args).Msg("executing yt-dlp")

	cmd := exec.CommandContext(ctx, y.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", "", &runError{err: err, stderr: tail(stderr.String(), 5)}
	}
	return stdout.String(), stderr.String(), nil
}

func (y *YtDlp) classify(source string, err error) error {
	kind := Transient

	var re *runError
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		kind = Permanent
	case errors.As(err, &re):
		for _, marker := range permanentMarkers {
			if strings.Contains(re.stderr, marker) {
				kind = Permanent
				break
			}
		}
	}

	return &Error{Source: source, Kind: kind, Err: err}
}

// existing finds a previous download for descriptor in the download dir
func (y *YtDlp) existing(descriptor string) (string, bool) {
	id := VideoID(descriptor)
	if id == "" {
		return "", false
	}
	matches, _ := filepath.Glob(filepath.Join(y.dir, DownloadPrefix+id+".*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") {
			return m, true
		}
	}
	return "", false
}

// VideoID extracts a YouTube video id from a bare id or a watch/short URL
func VideoID(descriptor string) string {
	if videoID.MatchString(descriptor) {
		return descriptor
	}
	u, err := url.Parse(descriptor)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); videoID.MatchString(v) {
		return v
	}
	last := filepath.Base(u.Path)
	if (u.Host == "youtu.be" || strings.Contains(u.Path, "/shorts/")) && videoID.MatchString(last) {
		return last
	}
	return ""
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
