package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
	"weather-pipeline/internal/queue"
	"weather-pipeline/internal/telemetry"
)

// JobStore is the slice of the store the processor uses for status tracking.
type JobStore interface {
	MarkJobPending(ctx context.Context, id string) error
	FinalizeJob(ctx context.Context, id, status string, completedAt time.Time) error
}

// ObservationStore persists per-city readings.
type ObservationStore interface {
	UpsertObservation(ctx context.Context, obs models.WeatherObservation) error
}

// Fetcher retrieves current conditions for one city.
type Fetcher interface {
	Fetch(ctx context.Context, city models.CityTarget) (models.WeatherObservation, error)
}

// Snapshotter exports the observation table after a fully successful job.
type Snapshotter interface {
	Export(ctx context.Context) error
}

// Processor drives the worker loop: block-pop the queue with a bounded
// wait, process one job at a time, finalize its status.
type Processor struct {
	cfg          config.Config
	queue        *queue.RedisQueue
	jobs         JobStore
	observations ObservationStore
	fetcher      Fetcher
	snapshots    Snapshotter
}

// New constructs a processor. snapshots may be nil when export is not configured.
func New(cfg config.Config, q *queue.RedisQueue, jobs JobStore, observations ObservationStore, fetcher Fetcher, snapshots Snapshotter) *Processor {
	return &Processor{
		cfg:          cfg,
		queue:        q,
		jobs:         jobs,
		observations: observations,
		fetcher:      fetcher,
		snapshots:    snapshots,
	}
}

// Run loops until context cancellation. No single job failure ever
// terminates the loop; a malformed payload is discarded and counted.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if depth, err := p.queue.Depth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		payload, ok, err := p.queue.PopBlocking(ctx, p.cfg.PopTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrMalformedPayload) {
				telemetry.MalformedPayloads.Inc()
				log.Printf("discarding queue message: %v", err)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("pop: %v", err)
			time.Sleep(p.cfg.PopTimeout)
			continue
		}
		if !ok {
			continue
		}

		p.processJob(ctx, payload)
	}
}

// processJob runs one job to completion. City-level failures are
// isolated; the job fails as a whole if any city failed.
func (p *Processor) processJob(ctx context.Context, payload models.JobPayload) {
	log.Printf("processing job %s (%d cities)", payload.ID, len(payload.Cities))

	// Re-assert pending before doing any work. This also creates the
	// row when the producer's insert never landed.
	if err := p.jobs.MarkJobPending(ctx, payload.ID); err != nil {
		log.Printf("job %s: mark pending: %v", payload.ID, err)
	}

	allOK := true
	for _, city := range payload.Cities {
		if err := p.syncCity(ctx, city); err != nil {
			telemetry.CityFetchFailures.Inc()
			log.Printf("job %s: city %s: %v", payload.ID, city.Name, err)
			allOK = false
		}
	}

	status := models.StatusSuccess
	if !allOK {
		status = models.StatusFailed
	}
	if err := p.jobs.FinalizeJob(ctx, payload.ID, status, time.Now().UTC()); err != nil {
		log.Printf("job %s: finalize: %v", payload.ID, err)
	}
	log.Printf("completed job %s with status %s", payload.ID, status)

	if status == models.StatusSuccess {
		telemetry.JobSuccess.Inc()
		if p.snapshots != nil {
			if err := p.snapshots.Export(ctx); err != nil {
				telemetry.SnapshotFailures.Inc()
				log.Printf("job %s: snapshot export: %v", payload.ID, err)
			}
		}
	} else {
		telemetry.JobFailures.Inc()
	}
}

// syncCity fetches and persists one city's reading.
func (p *Processor) syncCity(ctx context.Context, city models.CityTarget) error {
	// Zero coordinates mean the payload carried none.
	if city.Name == "" || city.Latitude == 0 || city.Longitude == 0 {
		return errors.New("missing name or coordinates")
	}
	obs, err := p.fetcher.Fetch(ctx, city)
	if err != nil {
		return err
	}
	return p.observations.UpsertObservation(ctx, obs)
}
