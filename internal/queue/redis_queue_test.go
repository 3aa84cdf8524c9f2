package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"weather-pipeline/internal/models"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueueWithClient(client, "weather:jobs"), mr
}

func TestPushPopFIFO(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	first := models.JobPayload{ID: "job-1", Type: models.JobTypeFetchWeather, CreatedAt: time.Now().UTC()}
	second := models.JobPayload{ID: "job-2", Type: models.JobTypeFetchWeather, CreatedAt: time.Now().UTC()}

	if err := q.Push(ctx, first); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.Push(ctx, second); err != nil {
		t.Fatalf("push: %v", err)
	}

	if depth, err := q.Depth(ctx); err != nil || depth != 2 {
		t.Fatalf("expected depth 2, got %d err=%v", depth, err)
	}

	got, ok, err := q.PopBlocking(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("pop: ok=%v err=%v", ok, err)
	}
	if got.ID != "job-1" {
		t.Fatalf("expected job-1 first, got %s", got.ID)
	}

	got, ok, err = q.PopBlocking(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("pop: ok=%v err=%v", ok, err)
	}
	if got.ID != "job-2" {
		t.Fatalf("expected job-2 second, got %s", got.ID)
	}
}

func TestPopBlockingEmptyTimesOut(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, ok, err := q.PopBlocking(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("pop on empty queue: %v", err)
	}
	if ok {
		t.Fatalf("expected no item from empty queue")
	}
}

func TestPopBlockingMalformedPayload(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)

	if _, err := mr.Push("weather:jobs", "{not json"); err != nil {
		t.Fatalf("seed raw message: %v", err)
	}

	_, _, err := q.PopBlocking(ctx, time.Second)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	// The bad message must have been consumed, not requeued.
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Fatalf("expected empty queue after discard, depth=%d", depth)
	}
}
