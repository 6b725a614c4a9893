package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Sink publishes a finished report
type Sink interface {
	Write(ctx context.Context, r *Report) error
}

// WriteAll writes r to every sink and joins their errors
func WriteAll(ctx context.Context, r *Report, sinks ...Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink logs the run summary
type LogSink struct {
	Logger zerolog.Logger
	// MaxErrors bounds how many individual errors are logged
	MaxErrors int
}

func (s LogSink) Write(ctx context.Context, r *Report) error {
	s.Logger.Info().
		Str("run", r.RunID).
		Int("items", r.Totals.Items).
		Int("done", r.Totals.Done).
		Int("failed", r.Totals.Failed).
		Int("candidates", r.Totals.Candidates).
		Int("clips", r.Totals.Clips).
		Int("failed_clips", r.Totals.FailedClips).
		Int("gaps", r.Totals.Gaps).
		Float64("success_rate", r.SuccessRate()).
		Dur("elapsed", r.FinishedAt.Sub(r.StartedAt)).
		Msg("run complete")

	platforms := make([]string, 0, len(r.ByPlatform))
	for p := range r.ByPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		s.Logger.Info().Str("platform", p).Int("clips", r.ByPlatform[p]).Msg("clips by platform")
	}

	limit := s.MaxErrors
	if limit <= 0 {
		limit = 5
	}
	for _, e := range r.FirstErrors(limit) {
		s.Logger.Warn().Str("error", e).Msg("failure")
	}
	return nil
}

// JSONSink writes the report as indented JSON
type JSONSink struct {
	Path string
}

func (s JSONSink) Write(ctx context.Context, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

var schema = []string{`CREATE TABLE IF NOT EXISTS fastcut_runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	items       INTEGER NOT NULL,
	done        INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	clips       INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fastcut_items (
	run_id     TEXT NOT NULL REFERENCES fastcut_runs(run_id) ON DELETE CASCADE,
	item_index INTEGER NOT NULL,
	item_id    TEXT NOT NULL,
	source     TEXT NOT NULL,
	state      TEXT NOT NULL,
	duration   DOUBLE PRECISION NOT NULL,
	candidates INTEGER NOT NULL,
	error      TEXT,
	PRIMARY KEY (run_id, item_index)
)`,
	`CREATE TABLE IF NOT EXISTS fastcut_clips (
	run_id     TEXT NOT NULL REFERENCES fastcut_runs(run_id) ON DELETE CASCADE,
	item_index INTEGER NOT NULL,
	platform   TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	start_s    DOUBLE PRECISION NOT NULL,
	end_s      DOUBLE PRECISION NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	output     TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	attempts   INTEGER NOT NULL,
	error      TEXT
)`,
}

// PostgresSink stores reports in PostgreSQL
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects and creates the report tables if needed
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create report schema: %w", err)
		}
	}

	return &PostgresSink{pool: pool}, nil
}

// Close closes the database connection
func (s *PostgresSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresSink) Write(ctx context.Context, r *Report) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO fastcut_runs (run_id, started_at, finished_at, items, done, failed, clips)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.RunID, r.StartedAt, r.FinishedAt, r.Totals.Items, r.Totals.Done, r.Totals.Failed, r.Totals.Clips)
		if err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, item := range r.Items {
			batch.Queue(
				`INSERT INTO fastcut_items (run_id, item_index, item_id, source, state, duration, candidates, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
				r.RunID, item.Index, item.ID, item.Source, item.State, item.Duration, item.Candidates, item.Error)

			for _, c := range item.Clips {
				batch.Queue(
					`INSERT INTO fastcut_clips (run_id, item_index, platform, rank, start_s, end_s, score, output, success, attempts, error)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))`,
					r.RunID, item.Index, c.Platform, c.Rank, c.Start, c.End, c.Score, c.Output, c.Success, c.Attempts, c.Error)
			}
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store items: %w", err)
		}
		return nil
	})
}
