// Package pipeline runs source items through fetch, analysis and rendering on
// two bounded worker pools and aggregates the outcome of every item.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/fastcut/internal/ai"
	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/config"
	"github.com/keagan/fastcut/internal/fetch"
	"github.com/keagan/fastcut/internal/media"
	"github.com/keagan/fastcut/internal/platform"
	"github.com/keagan/fastcut/internal/render"
	"github.com/keagan/fastcut/internal/report"
	"github.com/keagan/fastcut/internal/retry"
	"github.com/keagan/fastcut/pkg/util"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Deps are the external collaborators of a pipeline
type Deps struct {
	Fetcher    fetch.Fetcher
	Decoder    media.Decoder
	Transcoder render.Transcoder
}

// Pipeline orchestrates the clip selection workflow
type Pipeline struct {
	logger    zerolog.Logger
	config    *config.Config
	deps      Deps
	analyzer  *ai.Analyzer
	adapter   *platform.Adapter
	renderer  *render.Executor
	platforms []clips.Platform
	limiter   *rate.Limiter
	now       func() time.Time
}

// New validates cfg and builds a pipeline. A configuration error is the only
// failure that prevents a run.
func New(logger zerolog.Logger, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Fetcher == nil || deps.Decoder == nil || deps.Transcoder == nil {
		return nil, errors.New("pipeline requires a fetcher, a decoder and a transcoder")
	}

	platforms, err := cfg.PlatformList()
	if err != nil {
		return nil, err
	}

	detector, err := ai.NewClipDetector(logger, cfg.Constraints())
	if err != nil {
		return nil, err
	}

	analyzer := ai.NewAnalyzer(
		logger,
		ai.NewFeatureExtractor(logger, cfg.ExtractorConfig()),
		ai.NewWeightedScorer(cfg.ScoringConfig()),
		detector,
	)

	renderer := render.NewExecutor(logger, deps.Transcoder, render.Config{
		OutputDir: cfg.OutputDir,
		Timeout:   cfg.Render.Timeout,
		Retry:     cfg.RenderPolicy(),
	})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Fetch.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Fetch.RatePerMinute/60), 1)
	}

	return &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		config:    cfg,
		deps:      deps,
		analyzer:  analyzer,
		adapter:   platform.NewAdapter(logger),
		renderer:  renderer,
		platforms: platforms,
		limiter:   limiter,
		now:       time.Now,
	}, nil
}

// Platforms returns the resolved target platforms
func (p *Pipeline) Platforms() []clips.Platform {
	return p.platforms
}

// Run processes every item and returns the aggregated report. Item failures
// are recorded in the report; Run itself only fails when the output directory
// cannot be created. Cancelling ctx stops admission and aborts items at their
// next checkpoint; work already handed to ffmpeg or the fetcher finishes.
func (p *Pipeline) Run(ctx context.Context, items []clips.SourceItem) (*report.Report, error) {
	if err := util.EnsureDir(p.config.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.NewString()
	started := p.now()
	logger := p.logger.With().Str("run", runID).Logger()

	r := &run{
		p:      p,
		logger: logger,
		fetch:  NewPool(logger, "fetch", p.config.Pools.FetchWorkers, p.config.Pools.QueueSize),
		work:   NewPool(logger, "work", p.config.Pools.Workers, p.config.Pools.QueueSize),
		agg:    report.NewAggregator(runID, started),
		files:  make(map[string]*fileRef),
	}

	work := context.WithoutCancel(ctx)
	if err := r.fetch.Start(work); err != nil {
		return nil, err
	}
	if err := r.work.Start(work); err != nil {
		r.fetch.Close()
		return nil, err
	}

	logger.Info().
		Int("items", len(items)).
		Int("fetch_workers", p.config.Pools.FetchWorkers).
		Int("workers", p.config.Pools.Workers).
		Int("platforms", len(p.platforms)).
		Msg("run started")

	for _, item := range items {
		r.admit(ctx, item)
	}

	r.pending.Wait()
	r.fetch.Close()
	r.work.Close()

	rep := r.agg.Report(p.now())
	logger.Info().
		Int("done", rep.Totals.Done).
		Int("failed", rep.Totals.Failed).
		Int("clips", rep.Totals.Clips).
		Dur("elapsed", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("run finished")

	return rep, nil
}

// run holds the state of one Run call
type run struct {
	p      *Pipeline
	logger zerolog.Logger
	fetch  *Pool
	work   *Pool
	agg    *report.Aggregator

	pending sync.WaitGroup

	mu    sync.Mutex
	files map[string]*fileRef
}

// fileRef counts the live items reading a fetched file
type fileRef struct {
	users      int
	downloaded bool
}

func (r *run) hold(res fetch.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.files[res.Path]
	if !ok {
		ref = &fileRef{}
		r.files[res.Path] = ref
	}
	ref.users++
	ref.downloaded = ref.downloaded || res.Downloaded
}

// release drops one user of path and reports whether the file should be
// removed now
func (r *run) release(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.files[path]
	if !ok {
		return false
	}
	ref.users--
	if ref.users > 0 {
		return false
	}
	delete(r.files, path)
	return ref.downloaded
}

func (r *run) admit(runCtx context.Context, item clips.SourceItem) {
	t := newTask(item, r.p.now)
	r.pending.Add(1)

	err := r.fetch.Submit(runCtx, func(ctx context.Context) {
		r.fetchStage(runCtx, ctx, t)
	})
	if err != nil {
		r.finish(t, ErrCancelled)
	}
}

func (r *run) fetchStage(runCtx, ctx context.Context, t *Task) {
	r.advance(t, Fetching)

	res, attempts, err := r.p.fetchSource(runCtx, ctx, t.Item)
	t.FetchAttempts = attempts
	if err != nil {
		r.finish(t, err)
		return
	}
	t.Path, t.Downloaded = res.Path, res.Downloaded
	r.hold(res)

	m, err := r.p.deps.Decoder.Open(ctx, res.Path)
	if err != nil {
		r.finish(t, err)
		return
	}
	t.Duration = m.Info().Duration
	r.advance(t, Fetched)

	// Blocks while the work pool is saturated
	err = r.work.Submit(runCtx, func(ctx context.Context) {
		r.analyzeStage(runCtx, ctx, t, m)
	})
	if err != nil {
		closeMedia(r.logger, m)
		r.finish(t, ErrCancelled)
	}
}

func (r *run) analyzeStage(runCtx, ctx context.Context, t *Task, m media.Media) {
	if runCtx.Err() != nil {
		closeMedia(r.logger, m)
		r.finish(t, ErrCancelled)
		return
	}
	r.advance(t, Analyzing)

	analysis, err := r.p.analyzer.Analyze(ctx, t.Item, m)
	closeMedia(r.logger, m)
	if err != nil {
		r.finish(t, err)
		return
	}
	t.Candidates = analysis.Candidates
	r.advance(t, Analyzed)

	instructions, gaps := r.p.adapter.AdaptAll(analysis.Candidates, r.p.platforms, analysis.Timeline)
	t.Gaps = gaps
	r.advance(t, Rendering)

	// The dispatcher waits on render jobs, so it must not hold a worker
	go r.dispatch(runCtx, t, instructions)
}

// dispatch submits the renders of one item and joins them
func (r *run) dispatch(runCtx context.Context, t *Task, instructions []clips.RenderInstruction) {
	t.Clips = make([]clips.RenderedClip, len(instructions))

	var wg sync.WaitGroup
	skipped := 0
	for i, inst := range instructions {
		wg.Add(1)
		err := r.work.Submit(runCtx, func(ctx context.Context) {
			defer wg.Done()
			t.Clips[i] = r.p.renderer.Render(ctx, t.Path, inst)
		})
		if err != nil {
			wg.Done()
			t.Clips[i] = render.Cancelled(r.p.config.OutputDir, inst)
			skipped++
		}
	}
	wg.Wait()

	if skipped > 0 {
		r.finish(t, fmt.Errorf("%w: %d of %d renders not started", ErrCancelled, skipped, len(instructions)))
		return
	}
	r.advance(t, Done)
	r.finish(t, nil)
}

// finish moves t to its terminal state, releases its files and records it
func (r *run) finish(t *Task, err error) {
	if err != nil {
		if ferr := t.fail(err); ferr != nil {
			r.logger.Error().Err(ferr).Str("source", t.Item.Descriptor).Msg("state machine violation")
		}
	}

	// Items naming the same video may share a file; the last one removes it
	if t.Path != "" && r.release(t.Path) && !r.p.config.Fetch.KeepDownloads {
		if rmErr := os.Remove(t.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			r.logger.Warn().Err(rmErr).Str("path", t.Path).Msg("failed to remove download")
		}
	}

	rendered := 0
	for _, c := range t.Clips {
		if c.Success {
			rendered++
		}
	}

	ev := r.logger.Info()
	if t.State == Failed {
		ev = r.logger.Warn().Err(t.Err)
	}
	ev.Int("index", t.Item.Index).
		Str("source", t.Item.Descriptor).
		Str("state", t.State.String()).
		Int("candidates", len(t.Candidates)).
		Int("clips", rendered).
		Int("gaps", len(t.Gaps)).
		Msg("item finished")

	r.agg.Add(t.Report())
	r.pending.Done()
}

func (r *run) advance(t *Task, to State) {
	if err := t.advance(to); err != nil {
		r.logger.Error().Err(err).Str("source", t.Item.Descriptor).Msg("state machine violation")
		return
	}
	r.logger.Debug().Int("index", t.Item.Index).Str("state", to.String()).Msg("item advanced")
}

// fetchSource runs the fetch retry loop for one item. ctx bounds the calls
// themselves; runCtx is checked before every attempt.
func (p *Pipeline) fetchSource(runCtx, ctx context.Context, item clips.SourceItem) (fetch.Result, int, error) {
	timeout := p.config.Fetch.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	policy := p.config.FetchPolicy()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Warn().
			Err(err).
			Str("source", item.Descriptor).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("fetch failed, retrying")
	}

	res := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (fetch.Result, error) {
		if runCtx.Err() != nil {
			return fetch.Result{}, ErrCancelled
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return fetch.Result{}, err
		}
		return p.deps.Fetcher.Fetch(ctx, item)
	})
	if res.Outcome == retry.Ok {
		return res.Value, res.Attempts, nil
	}

	if errors.Is(res.Err, ErrCancelled) {
		return fetch.Result{}, res.Attempts, res.Err
	}

	kind, err := fetch.Permanent, res.Err
	var fe *fetch.Error
	if errors.As(res.Err, &fe) {
		kind, err = fe.Kind, fe.Err
	} else if res.Outcome == retry.TransientErr {
		kind = fetch.Transient
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", timeout, err)
	}

	return fetch.Result{}, res.Attempts, &fetch.Error{Source: item.Descriptor, Kind: kind, Attempts: res.Attempts, Err: err}
}

// Preview is the analysis of one source with its planned renders
type Preview struct {
	Item         clips.SourceItem
	Info         media.Info
	Analysis     *ai.Analysis
	Instructions []clips.RenderInstruction
	Gaps         []clips.AdaptationGap
}

// Preview fetches and analyzes one item without rendering anything
func (p *Pipeline) Preview(ctx context.Context, item clips.SourceItem) (*Preview, error) {
	res, _, err := p.fetchSource(ctx, ctx, item)
	if err != nil {
		return nil, err
	}
	if res.Downloaded && !p.config.Fetch.KeepDownloads {
		defer os.Remove(res.Path)
	}

	m, err := p.deps.Decoder.Open(ctx, res.Path)
	if err != nil {
		return nil, err
	}
	defer closeMedia(p.logger, m)

	analysis, err := p.analyzer.Analyze(ctx, item, m)
	if err != nil {
		return nil, err
	}

	instructions, gaps := p.adapter.AdaptAll(analysis.Candidates, p.platforms, analysis.Timeline)
	return &Preview{
		Item:         item,
		Info:         m.Info(),
		Analysis:     analysis,
		Instructions: instructions,
		Gaps:         gaps,
	}, nil
}

func closeMedia(logger zerolog.Logger, m media.Media) {
	if err := m.Close(); err != nil {
		logger.Warn().Err(err).Str("media", m.Path()).Msg("failed to close media")
	}
}
