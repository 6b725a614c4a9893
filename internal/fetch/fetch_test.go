package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/retry"
	"github.com/rs/zerolog"
)

// fakeYtDlp writes a shell script standing in for yt-dlp
func fakeYtDlp(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write fake yt-dlp: %v", err)
	}
	return path
}

func TestLocalFetch(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(video, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := Local{}.Fetch(context.Background(), clips.SourceItem{Descriptor: video})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Path != video || res.Downloaded {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestLocalFetchMissingIsPermanent(t *testing.T) {
	_, err := Local{}.Fetch(context.Background(), clips.SourceItem{Descriptor: filepath.Join(t.TempDir(), "missing.mp4")})

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != Permanent {
		t.Fatalf("expected permanent fetch error, got %v", err)
	}
	if retry.IsTransient(err) {
		t.Error("missing file must not be retried")
	}
}

func TestLocalFetchDirectoryIsPermanent(t *testing.T) {
	_, err := Local{}.Fetch(context.Background(), clips.SourceItem{Descriptor: t.TempDir()})

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != Permanent {
		t.Fatalf("expected permanent fetch error, got %v", err)
	}
}

func TestYtDlpFetchReturnsPrintedPath(t *testing.T) {
	bin := fakeYtDlp(t, `echo "[youtube] fetching"; echo "/tmp/fastcut_original_abc.mp4"`)
	y := NewYtDlp(zerolog.Nop(), bin, t.TempDir(), "")

	res, err := y.Fetch(context.Background(), clips.SourceItem{ID: "0123456789", Descriptor: "dQw4w9WgXcQ", Kind: clips.SourceRemote})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Path != "/tmp/fastcut_original_abc.mp4" || !res.Downloaded {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestYtDlpClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"unavailable", `echo "ERROR: [youtube] abc: Video unavailable" >&2; exit 1`, Permanent},
		{"forbidden", `echo "ERROR: unable to download video data: HTTP Error 403: Forbidden" >&2; exit 1`, Permanent},
		{"rate limited", `echo "ERROR: unable to download webpage: HTTP Error 429: Too Many Requests" >&2; exit 1`, Transient},
		{"reset", `echo "ERROR: Connection reset by peer" >&2; exit 1`, Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := NewYtDlp(zerolog.Nop(), fakeYtDlp(t, tt.body), t.TempDir(), "")
			_, err := y.Fetch(context.Background(), clips.SourceItem{ID: "abcdefgh-1", Descriptor: "https://example.com/v", Kind: clips.SourceRemote})

			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("expected fetch error, got %v", err)
			}
			if fe.Kind != tt.want {
				t.Errorf("expected %v, got %v (%v)", tt.want, fe.Kind, err)
			}
		})
	}
}

func TestYtDlpMissingBinaryIsPermanent(t *testing.T) {
	y := NewYtDlp(zerolog.Nop(), filepath.Join(t.TempDir(), "no-such-yt-dlp"), t.TempDir(), "")
	_, err := y.Fetch(context.Background(), clips.SourceItem{ID: "x", Descriptor: "https://example.com/v"})

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != Permanent {
		t.Fatalf("expected permanent error for missing binary, got %v", err)
	}
}

func TestYtDlpListChannel(t *testing.T) {
	bin := fakeYtDlp(t, `printf "id1\n\nid2\nid3\n"`)
	y := NewYtDlp(zerolog.Nop(), bin, t.TempDir(), "")

	ids, err := y.ListChannel(context.Background(), "UC123", 3)
	if err != nil {
		t.Fatalf("ListChannel failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != "id1" || ids[2] != "id3" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestRouterDispatchesByKind(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(video, nil, 0644); err != nil {
		t.Fatal(err)
	}

	r := Router{Local: Local{}}
	if _, err := r.Fetch(context.Background(), clips.SourceItem{Descriptor: video, Kind: clips.SourceLocal}); err != nil {
		t.Errorf("local fetch failed: %v", err)
	}

	_, err := r.Fetch(context.Background(), clips.SourceItem{Descriptor: "dQw4w9WgXcQ", Kind: clips.SourceRemote})
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != Permanent {
		t.Errorf("expected permanent error without remote fetcher, got %v", err)
	}
}

func TestURLExpandsVideoIDs(t *testing.T) {
	if got := URL("dQw4w9WgXcQ"); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("unexpected url %q", got)
	}
	if got := URL("https://vimeo.com/1"); got != "https://vimeo.com/1" {
		t.Errorf("urls should pass through, got %q", got)
	}
}

func TestYtDlpReusesExistingDownload(t *testing.T) {
	dir := t.TempDir()
	prev := filepath.Join(dir, DownloadPrefix+"dQw4w9WgXcQ.mp4")
	if err := os.WriteFile(prev, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	// the fake fails so any invocation is visible
	y := NewYtDlp(zerolog.Nop(), fakeYtDlp(t, `exit 1`), dir, "")
	y.Reuse = true

	res, err := y.Fetch(context.Background(), clips.SourceItem{Descriptor: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("expected reuse, got %v", err)
	}
	if res.Path != prev || res.Downloaded {
		t.Errorf("reused file must not be marked for cleanup: %+v", res)
	}
}

func TestVideoID(t *testing.T) {
	tests := map[string]string{
		"dQw4w9WgXcQ":                                 "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		"https://vimeo.com/12345":                     "",
	}
	for in, want := range tests {
		if got := VideoID(in); got != want {
			t.Errorf("VideoID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestYtDlpSkipsShortVideos(t *testing.T) {
	bin := fakeYtDlp(t, `case "$*" in
*"--match-filter duration >= 120"*) echo "[download] dQw4w9WgXcQ: does not pass filter (duration >= 120), skipping ..";;
*) echo "/tmp/fastcut_original_dQw4w9WgXcQ.0.mp4";;
esac`)
	y := NewYtDlp(zerolog.Nop(), bin, t.TempDir(), "")
	item := clips.SourceItem{Descriptor: "dQw4w9WgXcQ", Kind: clips.SourceRemote}

	if _, err := y.Fetch(context.Background(), item); err != nil {
		t.Fatalf("fetch without a minimum failed: %v", err)
	}

	y.MinDuration = 2 * time.Minute
	_, err := y.Fetch(context.Background(), item)

	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != Permanent {
		t.Fatalf("expected permanent fetch error, got %v", err)
	}
	if !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
	if retry.IsTransient(err) {
		t.Error("a short video must not be retried")
	}

	// quiet mode may drop the filter message entirely
	silent := NewYtDlp(zerolog.Nop(), fakeYtDlp(t, `exit 0`), t.TempDir(), "")
	silent.MinDuration = 2 * time.Minute
	if _, err := silent.Fetch(context.Background(), item); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort without output, got %v", err)
	}
}

func TestYtDlpOutputIsPerItem(t *testing.T) {
	// echoes the -o template back as the downloaded path
	bin := fakeYtDlp(t, `while [ $# -gt 0 ]; do
if [ "$1" = "-o" ]; then echo "$2"; fi
shift
done`)
	dir := t.TempDir()
	y := NewYtDlp(zerolog.Nop(), bin, dir, "")

	paths := make(map[string]bool)
	for i, desc := range []string{"dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"} {
		res, err := y.Fetch(context.Background(), clips.SourceItem{Index: i, Descriptor: desc, Kind: clips.SourceRemote})
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if !strings.HasPrefix(res.Path, filepath.Join(dir, DownloadPrefix)) {
			t.Errorf("download outside the temp dir: %s", res.Path)
		}
		paths[res.Path] = true
	}
	if len(paths) != 2 {
		t.Errorf("two items for the same video share a download path: %v", paths)
	}
}
