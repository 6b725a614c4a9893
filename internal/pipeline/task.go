package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/report"
)

// State is the lifecycle position of one source item
type State int

const (
	Pending State = iota
	Fetching
	Fetched
	Analyzing
	Analyzed
	Rendering
	Done
	Failed
)

var stateNames = [...]string{"pending", "fetching", "fetched", "analyzing", "analyzed", "rendering", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// next is the only forward successor of each non-terminal state
var next = map[State]State{
	Pending:   Fetching,
	Fetching:  Fetched,
	Fetched:   Analyzing,
	Analyzing: Analyzed,
	Analyzed:  Rendering,
	Rendering: Done,
}

// TransitionError is an attempt to move a task along an edge the lifecycle does not have
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// ErrCancelled fails items that stopped at a checkpoint after run cancellation
var ErrCancelled = errors.New("run cancelled")

// Transition is one timestamped state change
type Transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// Task tracks one source item through the pipeline. It is owned by exactly
// one goroutine at a time and handed over at stage boundaries.
type Task struct {
	Item    clips.SourceItem
	State   State
	History []Transition
	Err     error

	FetchAttempts int
	Path          string
	Downloaded    bool
	Duration      time.Duration
	Candidates    []clips.Candidate
	Gaps          []clips.AdaptationGap
	Clips         []clips.RenderedClip

	now func() time.Time
}

func newTask(item clips.SourceItem, now func() time.Time) *Task {
	if now == nil {
		now = time.Now
	}
	t := &Task{Item: item, State: Pending, now: now}
	t.History = append(t.History, Transition{From: Pending, To: Pending, At: now()})
	return t
}

// advance moves the task to its successor state
func (t *Task) advance(to State) error {
	if t.State.Terminal() || next[t.State] != to {
		return &TransitionError{From: t.State, To: to}
	}
	t.record(to, "")
	return nil
}

// fail moves any non-terminal task to Failed
func (t *Task) fail(err error) error {
	if t.State.Terminal() {
		return &TransitionError{From: t.State, To: Failed}
	}
	t.Err = err
	t.record(Failed, err.Error())
	return nil
}

func (t *Task) record(to State, reason string) {
	t.History = append(t.History, Transition{From: t.State, To: to, At: t.now(), Reason: reason})
	t.State = to
}

// Report converts the terminal task into its report record
func (t *Task) Report() report.ItemReport {
	r := report.ItemReport{
		Index:         t.Item.Index,
		ID:            t.Item.ID,
		Source:        t.Item.Descriptor,
		State:         t.State.String(),
		Duration:      t.Duration.Seconds(),
		Candidates:    len(t.Candidates),
		FetchAttempts: t.FetchAttempts,
		Clips:         make([]report.ClipReport, 0, len(t.Clips)),
		Gaps:          make([]report.GapReport, 0, len(t.Gaps)),
		History:       make([]report.StateChange, 0, len(t.History)),
	}
	if t.Err != nil {
		r.Error = t.Err.Error()
	}

	for _, c := range t.Clips {
		inst := c.Instruction
		cr := report.ClipReport{
			Platform:  inst.Platform.Name,
			Rank:      inst.Candidate.Rank,
			Start:     inst.Start.Seconds(),
			End:       inst.EffectiveEnd.Seconds(),
			Score:     inst.Candidate.Score,
			Truncated: inst.Truncated,
			Output:    c.Output,
			Success:   c.Success,
			Attempts:  c.Attempts,
			Elapsed:   c.Elapsed,
		}
		if c.Err != nil {
			cr.Error = c.Err.Error()
		}
		r.Clips = append(r.Clips, cr)
	}

	for _, g := range t.Gaps {
		r.Gaps = append(r.Gaps, report.GapReport{Rank: g.Candidate.Rank, Platform: g.Platform, Reason: g.Reason})
	}

	for _, h := range t.History {
		r.History = append(r.History, report.StateChange{State: h.To.String(), At: h.At, Reason: h.Reason})
	}

	return r
}
