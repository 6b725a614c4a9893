package clips

import (
	"fmt"
	"time"
)

// FeatureWindow holds the raw signal measured over one fixed-length window
type FeatureWindow struct {
	Start          time.Duration
	End            time.Duration
	AudioLevel     float64
	SpectralEnergy float64
	MotionScore    float64
}

// Duration returns the window length
func (w FeatureWindow) Duration() time.Duration {
	return w.End - w.Start
}

// ScoredWindow is a FeatureWindow with its derived engagement in [0,1]
type ScoredWindow struct {
	FeatureWindow
	Engagement float64
}

// Candidate is a selected time span within one source, before platform adaptation
type Candidate struct {
	Source    SourceItem
	Start     time.Duration
	End       time.Duration
	Score     float64 // peak engagement that seeded the region
	MeanScore float64
	Rank      int
}

// Duration returns the candidate length
func (c Candidate) Duration() time.Duration {
	return c.End - c.Start
}

// Overlaps reports whether two candidates share any instant
func (c Candidate) Overlaps(o Candidate) bool {
	return c.Start < o.End && o.Start < c.End
}

func (c Candidate) String() string {
	return fmt.Sprintf("#%d [%s, %s) score=%.3f", c.Rank, c.Start, c.End, c.Score)
}

// RenderInstruction pairs a candidate with one platform and the window to render
type RenderInstruction struct {
	Candidate    Candidate
	Platform     Platform
	Start        time.Duration
	EffectiveEnd time.Duration
	Truncated    bool
}

// Duration returns the length that will be rendered
func (r RenderInstruction) Duration() time.Duration {
	return r.EffectiveEnd - r.Start
}

// RenderedClip is the terminal record of one render instruction
type RenderedClip struct {
	Instruction RenderInstruction
	Output      string
	Success     bool
	Err         error
	Attempts    int
	Elapsed     time.Duration
}

// AdaptationGap records a candidate skipped for a single platform
type AdaptationGap struct {
	Candidate Candidate
	Platform  string
	Reason    string
}
