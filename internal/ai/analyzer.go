package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/media"
	"github.com/rs/zerolog"
)

// Analysis is the outcome of analyzing one source
type Analysis struct {
	Source     clips.SourceItem
	Duration   time.Duration
	Timeline   clips.Timeline
	Candidates []clips.Candidate
}

// Analyzer chains extraction, scoring and selection for one source
type Analyzer struct {
	logger    zerolog.Logger
	extractor *FeatureExtractor
	scorer    Scorer
	detector  *ClipDetector
}

func NewAnalyzer(logger zerolog.Logger, extractor *FeatureExtractor, scorer Scorer, detector *ClipDetector) *Analyzer {
	return &Analyzer{
		logger:    logger.With().Str("component", "analyzer").Logger(),
		extractor: extractor,
		scorer:    scorer,
		detector:  detector,
	}
}

// Analyze finds the candidate windows of one decoded source
func (a *Analyzer) Analyze(ctx context.Context, source clips.SourceItem, m media.Media) (*Analysis, error) {
	info := m.Info()
	a.logger.Info().
		Str("source", source.Descriptor).
		Dur("duration", info.Duration).
		Msg("starting analysis")

	// Step 1: extract features
	windows, err := a.extractor.Extract(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}

	// Step 2: score against the source's own range
	timeline := a.scorer.ScoreAll(windows)

	// Step 3: select candidates
	candidates := a.detector.Select(source, timeline)

	a.logger.Info().
		Str("source", source.Descriptor).
		Int("windows", len(timeline)).
		Int("candidates", len(candidates)).
		Msg("analysis complete")

	return &Analysis{
		Source:     source,
		Duration:   info.Duration,
		Timeline:   timeline,
		Candidates: candidates,
	}, nil
}
