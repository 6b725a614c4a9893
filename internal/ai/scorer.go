package ai

import (
	"math"

	"github.com/keagan/fastcut/internal/clips"
)

// Scorer converts a source's feature windows into engagement scores
type Scorer interface {
	ScoreAll(windows []clips.FeatureWindow) clips.Timeline
}

// ScoringConfig holds the feature weights and silence handling
type ScoringConfig struct {
	AudioWeight        float64
	SpectralWeight     float64
	MotionWeight       float64
	SilenceThresholdDB float64
	SilenceFactor      float64
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		AudioWeight:        0.4,
		SpectralWeight:     0.3,
		MotionWeight:       0.3,
		SilenceThresholdDB: -40,
		SilenceFactor:      0.1,
	}
}

// Validate rejects weight sets that cannot produce a score
func (c ScoringConfig) Validate() error {
	if c.AudioWeight < 0 || c.SpectralWeight < 0 || c.MotionWeight < 0 {
		return &SelectionError{Field: "weights", Reason: "must not be negative"}
	}
	if c.AudioWeight+c.SpectralWeight+c.MotionWeight == 0 {
		return &SelectionError{Field: "weights", Reason: "at least one weight must be positive"}
	}
	if c.SilenceFactor < 0 || c.SilenceFactor > 1 {
		return &SelectionError{Field: "silence_factor", Reason: "must be within [0, 1]"}
	}
	return nil
}

// Bounds are the per-source extremes each feature is normalized against
type Bounds struct {
	AudioMin, AudioMax       float64
	SpectralMin, SpectralMax float64
	MotionMin, MotionMax     float64
	// Gated is set when the source has audible audio, enabling the silence clamp
	Gated bool
}

// WeightedScorer scores windows as a weighted mean of min-max normalized features
type WeightedScorer struct {
	config  ScoringConfig
	silence float64 // linear amplitude
}

// NewWeightedScorer creates a scorer; the config must already be validated
func NewWeightedScorer(cfg ScoringConfig) *WeightedScorer {
	return &WeightedScorer{
		config:  cfg,
		silence: math.Pow(10, cfg.SilenceThresholdDB/20),
	}
}

// Bounds computes the normalization extremes for one source
func (s *WeightedScorer) Bounds(windows []clips.FeatureWindow) Bounds {
	if len(windows) == 0 {
		return Bounds{}
	}

	first := windows[0]
	b := Bounds{
		AudioMin: first.AudioLevel, AudioMax: first.AudioLevel,
		SpectralMin: first.SpectralEnergy, SpectralMax: first.SpectralEnergy,
		MotionMin: first.MotionScore, MotionMax: first.MotionScore,
	}
	for _, w := range windows[1:] {
		b.AudioMin, b.AudioMax = min(b.AudioMin, w.AudioLevel), max(b.AudioMax, w.AudioLevel)
		b.SpectralMin, b.SpectralMax = min(b.SpectralMin, w.SpectralEnergy), max(b.SpectralMax, w.SpectralEnergy)
		b.MotionMin, b.MotionMax = min(b.MotionMin, w.MotionScore), max(b.MotionMax, w.MotionScore)
	}
	b.Gated = b.AudioMax >= s.silence

	return b
}

// Score is a pure function of one window, the source bounds and the config
func (s *WeightedScorer) Score(w clips.FeatureWindow, b Bounds) float64 {
	c := s.config
	total := c.AudioWeight + c.SpectralWeight + c.MotionWeight
	if total <= 0 {
		return 0
	}

	score := c.AudioWeight*normalize(w.AudioLevel, b.AudioMin, b.AudioMax) +
		c.SpectralWeight*normalize(w.SpectralEnergy, b.SpectralMin, b.SpectralMax) +
		c.MotionWeight*normalize(w.MotionScore, b.MotionMin, b.MotionMax)
	score /= total

	if b.Gated && w.AudioLevel < s.silence {
		score *= c.SilenceFactor
	}

	return clamp01(score)
}

// ScoreAll normalizes against the source's own range and scores every window in order
func (s *WeightedScorer) ScoreAll(windows []clips.FeatureWindow) clips.Timeline {
	b := s.Bounds(windows)
	timeline := make(clips.Timeline, len(windows))
	for i, w := range windows {
		timeline[i] = clips.ScoredWindow{FeatureWindow: w, Engagement: s.Score(w, b)}
	}
	return timeline
}

// normalize maps x into [0,1]; a feature without range carries no signal
func normalize(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return clamp01((x - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
