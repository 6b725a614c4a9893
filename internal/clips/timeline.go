package clips

import "time"

// Timeline is the ordered, gapless scored window sequence of one source
type Timeline []ScoredWindow

// Duration returns the end of the last window
func (t Timeline) Duration() time.Duration {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].End
}

// Integral returns engagement integrated over [start, end) in score-seconds
func (t Timeline) Integral(start, end time.Duration) float64 {
	var sum float64
	for _, w := range t {
		if w.End <= start {
			continue
		}
		if w.Start >= end {
			break
		}
		lo, hi := max(w.Start, start), min(w.End, end)
		sum += w.Engagement * (hi - lo).Seconds()
	}
	return sum
}

// Mean returns the duration-weighted average engagement over [start, end)
func (t Timeline) Mean(start, end time.Duration) float64 {
	if end <= start {
		return 0
	}
	return t.Integral(start, end) / (end - start).Seconds()
}
