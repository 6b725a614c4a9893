package ai

import (
	"context"
	"image"
	"math"
	"testing"
	"time"

	"github.com/keagan/fastcut/internal/media"
	"github.com/rs/zerolog"
)

const testRate = 8000

func sine(seconds float64, amp, hz float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*hz*float64(i)/testRate)
	}
	return out
}

func flatFrame(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func testExtractor(window time.Duration) *FeatureExtractor {
	cfg := DefaultExtractorConfig()
	cfg.WindowLength = window
	cfg.FrameStride = 1
	cfg.FFTSize = 512
	return NewFeatureExtractor(zerolog.Nop(), cfg)
}

func TestWindowsCoverDuration(t *testing.T) {
	m := media.NewMemory("short.mp4", 5500*time.Millisecond, testRate, sine(5.5, 0.5, 440), 0, nil)

	windows, err := testExtractor(2*time.Second).Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	if windows[0].Start != 0 {
		t.Errorf("first window should start at 0, got %v", windows[0].Start)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].Start != windows[i-1].End {
			t.Errorf("gap or overlap between window %d and %d", i-1, i)
		}
	}
	last := windows[len(windows)-1]
	if last.End != 5500*time.Millisecond {
		t.Errorf("last window should end at media duration, got %v", last.End)
	}
	if last.Duration() != 1500*time.Millisecond {
		t.Errorf("expected short final window of 1.5s, got %v", last.Duration())
	}
}

func TestAudioLevelTracksLoudness(t *testing.T) {
	samples := append(sine(2, 0.05, 440), sine(2, 0.8, 440)...)
	m := media.NewMemory("loud.mp4", 4*time.Second, testRate, samples, 0, nil)

	windows, err := testExtractor(2*time.Second).Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if windows[1].AudioLevel <= windows[0].AudioLevel {
		t.Errorf("loud window should have higher level: %f vs %f", windows[1].AudioLevel, windows[0].AudioLevel)
	}
	// RMS of a sine is amp/sqrt(2)
	if got, want := windows[1].AudioLevel, 0.8/math.Sqrt2; math.Abs(got-want) > 0.01 {
		t.Errorf("expected level near %f, got %f", want, got)
	}
	if windows[1].SpectralEnergy <= windows[0].SpectralEnergy {
		t.Errorf("loud in-band tone should carry more spectral energy")
	}
}

func TestSpectralEnergyIgnoresOutOfBand(t *testing.T) {
	inBand := sine(1, 0.5, 1000)
	outOfBand := sine(1, 0.5, 60)
	m := media.NewMemory("band.mp4", 2*time.Second, testRate, append(inBand, outOfBand...), 0, nil)

	windows, err := testExtractor(time.Second).Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if windows[0].SpectralEnergy <= windows[1].SpectralEnergy*10 {
		t.Errorf("expected in-band energy to dominate: %g vs %g", windows[0].SpectralEnergy, windows[1].SpectralEnergy)
	}
}

func TestNoAudioReportsZero(t *testing.T) {
	frames := make([]media.Frame, 0, 40)
	for i := 0; i < 40; i++ {
		v := uint8(0)
		if i%2 == 1 {
			v = 200
		}
		frames = append(frames, media.Frame{Timestamp: time.Duration(i) * 100 * time.Millisecond, Image: flatFrame(32, 18, v)})
	}
	m := media.NewMemory("silent.mp4", 4*time.Second, 0, nil, 10, frames)

	windows, err := testExtractor(time.Second).Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, w := range windows {
		if w.AudioLevel != 0 || w.SpectralEnergy != 0 {
			t.Errorf("expected zero audio features, got %+v", w)
		}
		if w.MotionScore != 1 {
			t.Errorf("alternating frames should fully change, got %f", w.MotionScore)
		}
	}
}

func TestNoVideoReportsZeroMotion(t *testing.T) {
	m := media.NewMemory("audio.m4a", 2*time.Second, testRate, sine(2, 0.3, 440), 0, nil)

	windows, err := testExtractor(time.Second).Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, w := range windows {
		if w.MotionScore != 0 {
			t.Errorf("expected zero motion without video, got %f", w.MotionScore)
		}
	}
}

func TestMotionDownscalesLargeFrames(t *testing.T) {
	frames := []media.Frame{
		{Timestamp: 0, Image: flatFrame(640, 360, 10)},
		{Timestamp: 500 * time.Millisecond, Image: flatFrame(640, 360, 10)},
		{Timestamp: 1000 * time.Millisecond, Image: flatFrame(640, 360, 220)},
		{Timestamp: 1500 * time.Millisecond, Image: flatFrame(640, 360, 220)},
	}
	m := media.NewMemory("big.mp4", 2*time.Second, 0, nil, 2, frames)

	windows, err := testExtractor(time.Second).Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if windows[0].MotionScore != 0 {
		t.Errorf("static first second should have no motion, got %f", windows[0].MotionScore)
	}
	// second window sees one full change (0.5s->1.0s) and one static pair
	if math.Abs(windows[1].MotionScore-0.5) > 1e-9 {
		t.Errorf("expected motion 0.5, got %f", windows[1].MotionScore)
	}
}

func TestWindowsRestartable(t *testing.T) {
	m := media.NewMemory("again.mp4", 3*time.Second, testRate, sine(3, 0.4, 700), 0, nil)
	ext := testExtractor(time.Second)

	first, err := ext.Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	second, err := ext.Extract(context.Background(), m)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("passes differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("window %d differs between passes: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestWindowsStopsOnCancel(t *testing.T) {
	m := media.NewMemory("cancel.mp4", 10*time.Second, testRate, sine(10, 0.4, 700), 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testExtractor(time.Second).Extract(ctx, m); err == nil {
		t.Fatal("expected cancellation error")
	}
}
