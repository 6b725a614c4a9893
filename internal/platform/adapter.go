package platform

import (
	"fmt"
	"sort"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/rs/zerolog"
)

// Adapter maps candidates onto platform duration bounds
type Adapter struct {
	logger zerolog.Logger
}

func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger.With().Str("component", "platform-adapter").Logger()}
}

// Adapt builds the render instruction for one candidate on one platform. A
// candidate shorter than the platform minimum yields a gap instead.
func (a *Adapter) Adapt(c clips.Candidate, p clips.Platform, timeline clips.Timeline) (clips.RenderInstruction, *clips.AdaptationGap) {
	length := c.Duration()

	if p.MinDuration > 0 && length < p.MinDuration {
		return clips.RenderInstruction{}, &clips.AdaptationGap{
			Candidate: c,
			Platform:  p.Name,
			Reason:    fmt.Sprintf("clip length %s below platform minimum %s", length, p.MinDuration),
		}
	}

	inst := clips.RenderInstruction{
		Candidate:    c,
		Platform:     p,
		Start:        c.Start,
		EffectiveEnd: c.End,
	}

	if p.MaxDuration > 0 && length > p.MaxDuration {
		inst.Start = bestSubWindow(timeline, c.Start, c.End, p.MaxDuration)
		inst.EffectiveEnd = inst.Start + p.MaxDuration
		inst.Truncated = true

		a.logger.Debug().
			Str("platform", p.Name).
			Int("rank", c.Rank).
			Dur("from", length).
			Dur("start", inst.Start).
			Msg("candidate truncated to platform maximum")
	}

	return inst, nil
}

// AdaptAll pairs every candidate with every platform, in rank then platform order
func (a *Adapter) AdaptAll(candidates []clips.Candidate, platforms []clips.Platform, timeline clips.Timeline) ([]clips.RenderInstruction, []clips.AdaptationGap) {
	var (
		instructions []clips.RenderInstruction
		gaps         []clips.AdaptationGap
	)
	for _, c := range candidates {
		for _, p := range platforms {
			inst, gap := a.Adapt(c, p, timeline)
			if gap != nil {
				gaps = append(gaps, *gap)
				continue
			}
			instructions = append(instructions, inst)
		}
	}
	return instructions, gaps
}

// tieEpsilon absorbs float noise so equal spans resolve to the earliest start
const tieEpsilon = 1e-9

// bestSubWindow returns the start of the length-long span inside [start, end)
// with the greatest cumulative engagement, earliest start on ties. Cumulative
// engagement is piecewise linear in the start offset, so only offsets where
// either edge meets a window boundary need to be evaluated.
func bestSubWindow(timeline clips.Timeline, start, end, length time.Duration) time.Duration {
	last := end - length
	offsets := []time.Duration{start, last}
	for _, w := range timeline {
		for _, b := range []time.Duration{w.Start, w.End} {
			if b > start && b < last {
				offsets = append(offsets, b)
			}
			if o := b - length; o > start && o < last {
				offsets = append(offsets, o)
			}
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	best, bestSum := start, timeline.Integral(start, start+length)
	for _, o := range offsets[1:] {
		if sum := timeline.Integral(o, o+length); sum > bestSum+tieEpsilon {
			best, bestSum = o, sum
		}
	}
	return best
}
