package ai

import (
	"fmt"
	"sort"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/rs/zerolog"
)

// SelectionError reports malformed selection or scoring constraints
type SelectionError struct {
	Field  string
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection constraints: %s %s", e.Field, e.Reason)
}

// Constraints configure clip selection
type Constraints struct {
	MinClipDuration  time.Duration
	MaxClipDuration  time.Duration
	MaxClipsPerVideo int
	// PeakFraction is the share of the peak score the running average must hold while growing
	PeakFraction float64
	// EnergyThreshold is the minimum engagement for a window to seed a region
	EnergyThreshold float64
}

func DefaultConstraints() Constraints {
	return Constraints{
		MinClipDuration:  15 * time.Second,
		MaxClipDuration:  60 * time.Second,
		MaxClipsPerVideo: 3,
		PeakFraction:     0.6,
		EnergyThreshold:  0.35,
	}
}

// Validate checks constraints before any item is admitted
func (c Constraints) Validate() error {
	switch {
	case c.MinClipDuration <= 0:
		return &SelectionError{Field: "min_clip_duration", Reason: "must be positive"}
	case c.MaxClipDuration <= 0:
		return &SelectionError{Field: "max_clip_duration", Reason: "must be positive"}
	case c.MinClipDuration > c.MaxClipDuration:
		return &SelectionError{
			Field:  "min_clip_duration",
			Reason: fmt.Sprintf("(%s) must not exceed max_clip_duration (%s)", c.MinClipDuration, c.MaxClipDuration),
		}
	case c.MaxClipsPerVideo < 1:
		return &SelectionError{Field: "max_clips_per_video", Reason: "must be at least 1"}
	case c.PeakFraction <= 0 || c.PeakFraction > 1:
		return &SelectionError{Field: "peak_fraction", Reason: "must be within (0, 1]"}
	case c.EnergyThreshold < 0 || c.EnergyThreshold > 1:
		return &SelectionError{Field: "energy_threshold", Reason: "must be within [0, 1]"}
	}
	return nil
}

// ClipDetector selects ranked, non-overlapping candidates from a scored timeline
type ClipDetector struct {
	logger zerolog.Logger
	config Constraints
}

// NewClipDetector validates the constraints and creates a detector
func NewClipDetector(logger zerolog.Logger, cfg Constraints) (*ClipDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ClipDetector{
		logger: logger.With().Str("component", "clip-detector").Logger(),
		config: cfg,
	}, nil
}

// Constraints returns the active constraints
func (d *ClipDetector) Constraints() Constraints {
	return d.config
}

// region is a span grown from one local peak
type region struct {
	start time.Duration
	end   time.Duration
	peak  float64
}

func (r region) overlaps(o region) bool {
	return r.start < o.end && o.start < r.end
}

// Select returns candidates in descending score order with ranks assigned
func (d *ClipDetector) Select(source clips.SourceItem, timeline clips.Timeline) []clips.Candidate {
	total := timeline.Duration()
	if total < d.config.MinClipDuration {
		d.logger.Debug().
			Str("source", source.Descriptor).
			Dur("duration", total).
			Dur("min_clip", d.config.MinClipDuration).
			Msg("source shorter than minimum clip, no candidates")
		return nil
	}

	// Step 1: grow regions from local peaks
	regions := d.growRegions(timeline)

	// Step 2: strongest peaks claim time first, earlier start on ties
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].peak != regions[j].peak {
			return regions[i].peak > regions[j].peak
		}
		return regions[i].start < regions[j].start
	})

	// Step 3: accept non-overlapping regions, extending short ones into free time
	accepted := make([]region, 0, d.config.MaxClipsPerVideo)
	for _, r := range regions {
		if len(accepted) == d.config.MaxClipsPerVideo {
			break
		}
		if overlapsAny(r, accepted) {
			continue
		}
		if r.end-r.start < d.config.MinClipDuration {
			extended, ok := d.extend(r, accepted, total)
			if !ok {
				d.logger.Debug().
					Dur("start", r.start).
					Dur("end", r.end).
					Msg("region cannot reach minimum length, dropped")
				continue
			}
			r = extended
		}
		accepted = append(accepted, r)
	}

	// Step 4: rank in acceptance order
	candidates := make([]clips.Candidate, len(accepted))
	for i, r := range accepted {
		candidates[i] = clips.Candidate{
			Source:    source,
			Start:     r.start,
			End:       r.end,
			Score:     r.peak,
			MeanScore: timeline.Mean(r.start, r.end),
			Rank:      i + 1,
		}
	}

	d.logger.Debug().
		Str("source", source.Descriptor).
		Int("regions", len(regions)).
		Int("candidates", len(candidates)).
		Msg("selection complete")

	return candidates
}

// growRegions grows forward from every local peak while the duration-weighted
// running average holds PeakFraction of the peak.
func (d *ClipDetector) growRegions(timeline clips.Timeline) []region {
	var regions []region

	for i, w := range timeline {
		peak := w.Engagement
		if peak <= 0 || peak < d.config.EnergyThreshold {
			continue
		}
		// The first window of a plateau is the peak
		if i > 0 && timeline[i-1].Engagement >= peak {
			continue
		}
		if i+1 < len(timeline) && timeline[i+1].Engagement > peak {
			continue
		}

		start, end := w.Start, w.End
		weighted := peak * w.Duration().Seconds()
		floor := d.config.PeakFraction * peak

		for _, next := range timeline[i+1:] {
			if next.End-start > d.config.MaxClipDuration {
				break
			}
			sum := weighted + next.Engagement*next.Duration().Seconds()
			if sum/(next.End-start).Seconds() < floor {
				break
			}
			weighted = sum
			end = next.End
		}

		if end-start > d.config.MaxClipDuration {
			end = start + d.config.MaxClipDuration
		}

		regions = append(regions, region{start: start, end: end, peak: peak})
	}

	return regions
}

// extend widens r symmetrically to MinClipDuration inside the free gap between
// accepted regions, shifting when one side is blocked.
func (d *ClipDetector) extend(r region, accepted []region, total time.Duration) (region, bool) {
	lo, hi := time.Duration(0), total
	for _, a := range accepted {
		if a.end <= r.start && a.end > lo {
			lo = a.end
		}
		if a.start >= r.end && a.start < hi {
			hi = a.start
		}
	}

	minLen := d.config.MinClipDuration
	if hi-lo < minLen {
		return r, false
	}

	need := minLen - (r.end - r.start)
	left := need / 2
	start, end := r.start-left, r.end+(need-left)

	if start < lo {
		end += lo - start
		start = lo
	}
	if end > hi {
		start -= end - hi
		end = hi
	}

	r.start, r.end = start, end
	return r, true
}

func overlapsAny(r region, accepted []region) bool {
	for _, a := range accepted {
		if r.overlaps(a) {
			return true
		}
	}
	return false
}
