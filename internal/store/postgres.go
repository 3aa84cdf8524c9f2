package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"weather-pipeline/internal/models"
)

// Store wraps pgxpool for Postgres persistence of job history and
// weather observations. All writes are single-statement upserts keyed
// on a unique column, so concurrent producer/worker writes cannot
// produce duplicate rows.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertJob records a freshly enqueued job as pending. A colliding id
// leaves the existing row untouched, so re-running an insert can never
// clobber a terminal status.
func (s *Store) InsertJob(ctx context.Context, id string, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_history (job_id, status, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO NOTHING
	`, id, models.StatusPending, createdAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", id, err)
	}
	return nil
}

// MarkJobPending re-asserts pending at the start of processing. This
// also creates the row when the producer's own insert failed after the
// push, reconciling that gap.
func (s *Store) MarkJobPending(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_history (job_id, status)
		VALUES ($1, $2)
		ON CONFLICT (job_id) DO UPDATE SET status = EXCLUDED.status
	`, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark job %s pending: %w", id, err)
	}
	return nil
}

// FinalizeJob writes the single authoritative terminal status together
// with the completion time.
func (s *Store) FinalizeJob(ctx context.Context, id, status string, completedAt time.Time) error {
	if status != models.StatusSuccess && status != models.StatusFailed {
		return fmt.Errorf("finalize job %s: status %q is not terminal", id, status)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_history (job_id, status, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at
	`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", id, err)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, status, created_at, completed_at
		FROM job_history WHERE job_id = $1
	`, id)

	var job models.Job
	var completed pgtype.Timestamptz
	if err := row.Scan(&job.ID, &job.Status, &job.CreatedAt, &completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("job %s not found: %w", id, err)
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.CompletedAt = timestampPtr(completed)
	return job, nil
}

// ListJobs returns the most recent jobs ordered by creation time descending.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, status, created_at, completed_at
		FROM job_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.Job, 0, limit)
	for rows.Next() {
		var job models.Job
		var completed pgtype.Timestamptz
		if err := rows.Scan(&job.ID, &job.Status, &job.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		job.CompletedAt = timestampPtr(completed)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpsertObservation overwrites the single row for a city with the
// latest reading. updated_at tracks the local write time.
func (s *Store) UpsertObservation(ctx context.Context, obs models.WeatherObservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weather_data (city, temperature, wind_speed, observed_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (city) DO UPDATE SET
			temperature = EXCLUDED.temperature,
			wind_speed = EXCLUDED.wind_speed,
			observed_at = EXCLUDED.observed_at,
			updated_at = NOW()
	`, obs.City, obs.Temperature, obs.WindSpeed, obs.ObservedAt)
	if err != nil {
		return fmt.Errorf("upsert observation for %s: %w", obs.City, err)
	}
	return nil
}

// ListObservations returns all stored city readings.
func (s *Store) ListObservations(ctx context.Context) ([]models.WeatherObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT city, temperature, wind_speed, observed_at, updated_at
		FROM weather_data
		ORDER BY city
	`)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []models.WeatherObservation
	for rows.Next() {
		var obs models.WeatherObservation
		if err := rows.Scan(&obs.City, &obs.Temperature, &obs.WindSpeed, &obs.ObservedAt, &obs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// LastSync returns the newest updated_at across all observation rows,
// or nil when no row exists yet.
func (s *Store) LastSync(ctx context.Context) (*time.Time, error) {
	var last pgtype.Timestamptz
	if err := s.pool.QueryRow(ctx, `
		SELECT MAX(updated_at) FROM weather_data
	`).Scan(&last); err != nil {
		return nil, fmt.Errorf("query last sync: %w", err)
	}
	return timestampPtr(last), nil
}

func timestampPtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}
