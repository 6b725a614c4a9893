package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{1500 * time.Millisecond, "00:00:01.500"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03.000"},
		{-time.Second, "00:00:00.000"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := FormatSeconds(12345 * time.Millisecond); got != "12.345" {
		t.Errorf("FormatSeconds = %q, want 12.345", got)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001},
		{"0/0", 0},
		{"25", 25},
		{" 24/1 ", 24},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := ParseFrameRate(tt.in); got != tt.want {
			t.Errorf("ParseFrameRate(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestListVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.MOV", "notes.txt", "c.webm"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.mp4"), 0755); err != nil {
		t.Fatal(err)
	}

	videos, err := ListVideos(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 3 || filepath.Base(videos[0]) != "a.MOV" || filepath.Base(videos[2]) != "c.webm" {
		t.Errorf("unexpected videos: %v", videos)
	}

	if _, err := ListVideos(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureDir(filepath.Join(dir, "tiktok")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tiktok", "clip.mp4"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "video.mp4"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	n, err := ClearDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries removed, got %d", n)
	}
	if !FileExists(dir) {
		t.Error("directory itself should be kept")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("directory not empty: %v", entries)
	}

	if n, err := ClearDir(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Errorf("missing directory should be a no-op, got %d, %v", n, err)
	}
}
