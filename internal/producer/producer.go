package producer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
	"weather-pipeline/internal/queue"
	"weather-pipeline/internal/telemetry"
)

// JobRecorder is the slice of the store the producer needs.
type JobRecorder interface {
	InsertJob(ctx context.Context, id string, createdAt time.Time) error
}

// Producer originates fetch jobs, either on a recurring interval or on
// demand via the API. Both paths go through EnqueueJob and share the
// configured city list.
type Producer struct {
	cfg   config.Config
	queue *queue.RedisQueue
	store JobRecorder
}

// New constructs a producer.
func New(cfg config.Config, q *queue.RedisQueue, st JobRecorder) *Producer {
	return &Producer{cfg: cfg, queue: q, store: st}
}

// EnqueueJob generates a fresh job id, pushes the payload, then records
// the pending row. The push comes first: a failed push must not leave
// an orphan pending row, while a failed insert after a successful push
// still gets reconciled when the worker re-asserts pending.
func (p *Producer) EnqueueJob(ctx context.Context) (string, error) {
	jobID := fmt.Sprintf("job-%s", uuid.New().String())
	now := time.Now().UTC()

	payload := models.JobPayload{
		ID:        jobID,
		Type:      models.JobTypeFetchWeather,
		Cities:    p.cfg.Cities,
		CreatedAt: now,
	}

	if err := p.queue.Push(ctx, payload); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	telemetry.EnqueueCounter.Inc()

	if err := p.store.InsertJob(ctx, jobID, now); err != nil {
		// The payload is already in flight; the worker will establish
		// the status row when it picks the job up.
		log.Printf("job %s enqueued but status insert failed: %v", jobID, err)
		return jobID, fmt.Errorf("record job %s: %w", jobID, err)
	}

	return jobID, nil
}

// Run enqueues once immediately, then on every interval tick until the
// context is cancelled. Timer-path failures are logged, never fatal.
func (p *Producer) Run(ctx context.Context) error {
	if _, err := p.EnqueueJob(ctx); err != nil {
		log.Printf("initial enqueue: %v", err)
	}

	ticker := time.NewTicker(p.cfg.ProducerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if id, err := p.EnqueueJob(ctx); err != nil {
				log.Printf("scheduled enqueue: %v", err)
			} else {
				log.Printf("job %s enqueued", id)
			}
		}
	}
}
