package ai

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/rs/zerolog"
)

func flatTimeline(total, window time.Duration, score func(start time.Duration) float64) clips.Timeline {
	var t clips.Timeline
	for start := time.Duration(0); start < total; start += window {
		end := min(start+window, total)
		t = append(t, clips.ScoredWindow{
			FeatureWindow: clips.FeatureWindow{Start: start, End: end},
			Engagement:    score(start),
		})
	}
	return t
}

func newTestDetector(t *testing.T, cfg Constraints) *ClipDetector {
	t.Helper()
	d, err := NewClipDetector(zerolog.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewClipDetector failed: %v", err)
	}
	return d
}

func TestSelectSingleSharpPeak(t *testing.T) {
	cfg := DefaultConstraints()
	d := newTestDetector(t, cfg)

	timeline := flatTimeline(600*time.Second, time.Second, func(start time.Duration) float64 {
		if start >= 120*time.Second && start < 125*time.Second {
			return 1
		}
		return 0
	})

	got := d.Select(clips.SourceItem{Descriptor: "a.mp4"}, timeline)
	if len(got) != 1 {
		t.Fatalf("expected exactly one candidate, got %d: %v", len(got), got)
	}

	c := got[0]
	if c.Start > 120*time.Second || c.End < 125*time.Second {
		t.Errorf("candidate [%v, %v) does not contain the peak", c.Start, c.End)
	}
	if c.Duration() < cfg.MinClipDuration || c.Duration() > cfg.MaxClipDuration {
		t.Errorf("candidate length %v outside bounds", c.Duration())
	}
	if c.Rank != 1 {
		t.Errorf("expected rank 1, got %d", c.Rank)
	}
	if c.Score != 1 {
		t.Errorf("expected peak score 1, got %v", c.Score)
	}
}

func TestSelectShortSourceYieldsNothing(t *testing.T) {
	d := newTestDetector(t, DefaultConstraints())
	timeline := flatTimeline(10*time.Second, 2*time.Second, func(time.Duration) float64 { return 1 })

	if got := d.Select(clips.SourceItem{}, timeline); len(got) != 0 {
		t.Errorf("expected zero candidates for a short source, got %v", got)
	}
}

func TestSelectGrowthStopsAtMax(t *testing.T) {
	cfg := DefaultConstraints()
	cfg.MaxClipsPerVideo = 1
	d := newTestDetector(t, cfg)

	timeline := flatTimeline(300*time.Second, 2*time.Second, func(start time.Duration) float64 {
		if start == 0 {
			return 1
		}
		return 0.9
	})

	got := d.Select(clips.SourceItem{}, timeline)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if got[0].Duration() != cfg.MaxClipDuration {
		t.Errorf("expected growth capped at %v, got %v", cfg.MaxClipDuration, got[0].Duration())
	}
}

func TestSelectRanksAndTruncates(t *testing.T) {
	cfg := DefaultConstraints()
	cfg.MaxClipsPerVideo = 2
	d := newTestDetector(t, cfg)

	peaks := map[time.Duration]float64{
		50 * time.Second:  0.6,
		150 * time.Second: 1.0,
		250 * time.Second: 0.8,
	}
	timeline := flatTimeline(400*time.Second, time.Second, func(start time.Duration) float64 {
		return peaks[start]
	})

	got := d.Select(clips.SourceItem{}, timeline)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Score != 1.0 || got[1].Score != 0.8 {
		t.Errorf("expected descending scores 1.0, 0.8, got %v, %v", got[0].Score, got[1].Score)
	}
	for i, c := range got {
		if c.Rank != i+1 {
			t.Errorf("candidate %d has rank %d", i, c.Rank)
		}
	}
}

func TestSelectTieBreaksOnEarlierStart(t *testing.T) {
	cfg := DefaultConstraints()
	cfg.MaxClipsPerVideo = 1
	d := newTestDetector(t, cfg)

	timeline := flatTimeline(200*time.Second, time.Second, func(start time.Duration) float64 {
		if start == 40*time.Second || start == 140*time.Second {
			return 0.9
		}
		return 0
	})

	got := d.Select(clips.SourceItem{}, timeline)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if got[0].Start > 40*time.Second || got[0].End < 41*time.Second {
		t.Errorf("tie should go to the earlier peak, got [%v, %v)", got[0].Start, got[0].End)
	}
}

func TestSelectExtensionShiftsAtEdges(t *testing.T) {
	d := newTestDetector(t, DefaultConstraints())

	timeline := flatTimeline(100*time.Second, time.Second, func(start time.Duration) float64 {
		if start == 0 {
			return 1
		}
		return 0
	})

	got := d.Select(clips.SourceItem{}, timeline)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if got[0].Start != 0 || got[0].End != 15*time.Second {
		t.Errorf("expected extension shifted to [0s, 15s), got [%v, %v)", got[0].Start, got[0].End)
	}
}

func TestSelectDropsRegionWithoutRoom(t *testing.T) {
	cfg := DefaultConstraints()
	cfg.MaxClipsPerVideo = 5
	cfg.PeakFraction = 1
	d := newTestDetector(t, cfg)

	// Two strong plateaus leave a 10s gap holding a weaker peak
	timeline := flatTimeline(200*time.Second, time.Second, func(start time.Duration) float64 {
		switch {
		case start >= 40*time.Second && start < 60*time.Second:
			return 1
		case start >= 70*time.Second && start < 90*time.Second:
			return 1
		case start == 65*time.Second:
			return 0.5
		}
		return 0
	})

	got := d.Select(clips.SourceItem{}, timeline)
	if len(got) != 2 {
		t.Fatalf("expected the two plateaus only, got %v", got)
	}
	if got[0].Start != 40*time.Second || got[0].End != 60*time.Second {
		t.Errorf("unexpected first candidate %v", got[0])
	}
	if got[1].Start != 70*time.Second || got[1].End != 90*time.Second {
		t.Errorf("unexpected second candidate %v", got[1])
	}
}

func TestSelectProperties(t *testing.T) {
	cfg := DefaultConstraints()
	cfg.MaxClipsPerVideo = 6
	d := newTestDetector(t, cfg)

	for seed := int64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		total := time.Duration(rng.Intn(900)+1) * time.Second
		window := time.Duration(rng.Intn(4)+1) * time.Second
		timeline := flatTimeline(total, window, func(time.Duration) float64 {
			if rng.Float64() < 0.6 {
				return 0
			}
			return rng.Float64()
		})

		got := d.Select(clips.SourceItem{}, timeline)
		if total < cfg.MinClipDuration && len(got) != 0 {
			t.Fatalf("seed %d: short source produced candidates", seed)
		}
		if len(got) > cfg.MaxClipsPerVideo {
			t.Fatalf("seed %d: %d candidates exceeds limit", seed, len(got))
		}

		for i, c := range got {
			if c.Duration() < cfg.MinClipDuration || c.Duration() > cfg.MaxClipDuration {
				t.Fatalf("seed %d: candidate %v has length %v", seed, c, c.Duration())
			}
			if c.Start < 0 || c.Start >= c.End || c.End > total {
				t.Fatalf("seed %d: candidate %v outside [0, %v]", seed, c, total)
			}
			if i > 0 && c.Score > got[i-1].Score {
				t.Fatalf("seed %d: candidates not in descending score order", seed)
			}
		}

		byStart := append([]clips.Candidate(nil), got...)
		sort.Slice(byStart, func(i, j int) bool { return byStart[i].Start < byStart[j].Start })
		for i := 1; i < len(byStart); i++ {
			if byStart[i].Start < byStart[i-1].End {
				t.Fatalf("seed %d: candidates overlap: %v and %v", seed, byStart[i-1], byStart[i])
			}
		}
	}
}

func TestConstraintsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Constraints)
	}{
		{"min above max", func(c *Constraints) { c.MinClipDuration = 90 * time.Second }},
		{"zero min", func(c *Constraints) { c.MinClipDuration = 0 }},
		{"zero clips", func(c *Constraints) { c.MaxClipsPerVideo = 0 }},
		{"fraction above one", func(c *Constraints) { c.PeakFraction = 1.5 }},
		{"negative threshold", func(c *Constraints) { c.EnergyThreshold = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConstraints()
			tt.mutate(&cfg)

			_, err := NewClipDetector(zerolog.Nop(), cfg)
			var selErr *SelectionError
			if !errors.As(err, &selErr) {
				t.Errorf("expected SelectionError, got %v", err)
			}
		})
	}

	if err := DefaultConstraints().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
