package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
	"weather-pipeline/internal/ratelimit"
)

type fakeReader struct {
	jobs     []models.Job
	obs      []models.WeatherObservation
	lastSync *time.Time
	err      error
}

func (f *fakeReader) ListJobs(_ context.Context, _ int) ([]models.Job, error) {
	return f.jobs, f.err
}

func (f *fakeReader) ListObservations(_ context.Context) ([]models.WeatherObservation, error) {
	return f.obs, f.err
}

func (f *fakeReader) LastSync(_ context.Context) (*time.Time, error) {
	return f.lastSync, f.err
}

type fakeEnqueuer struct {
	id  string
	err error
}

func (f *fakeEnqueuer) EnqueueJob(_ context.Context) (string, error) {
	return f.id, f.err
}

func testConfig() config.Config {
	cfg := config.Load()
	cfg.Cities = []models.CityTarget{
		{Name: "London", Latitude: 51.5, Longitude: -0.13},
		{Name: "Cairo", Latitude: 30.04, Longitude: 31.24},
	}
	return cfg
}

func TestListJobs(t *testing.T) {
	created := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	reader := &fakeReader{jobs: []models.Job{
		{ID: "job-2", Status: models.StatusPending, CreatedAt: created.Add(time.Minute)},
		{ID: "job-1", Status: models.StatusSuccess, CreatedAt: created},
	}}
	srv := New(testConfig(), reader, &fakeEnqueuer{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Jobs    []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			Timestamp string `json:"timestamp"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Jobs) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Jobs[0].ID != "job-2" || resp.Jobs[0].Status != "pending" {
		t.Fatalf("unexpected first entry: %+v", resp.Jobs[0])
	}
}

func TestTriggerJob(t *testing.T) {
	srv := New(testConfig(), &fakeReader{}, &fakeEnqueuer{id: "job-abc"}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp triggerJobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.JobID != "job-abc" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTriggerJobEnqueueFailure(t *testing.T) {
	srv := New(testConfig(), &fakeReader{}, &fakeEnqueuer{err: errors.New("queue unreachable")}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected structured error, got %+v", resp)
	}
}

func TestTriggerJobRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimit.NewTokenBucket(client, 1, 0.001, time.Minute)

	srv := New(testConfig(), &fakeReader{}, &fakeEnqueuer{id: "job-abc"}, limiter)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected first request accepted, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rec.Code)
	}
}

func TestWeatherSynthesizesMissingCities(t *testing.T) {
	observed := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	sync := observed.Add(time.Minute)
	reader := &fakeReader{
		obs: []models.WeatherObservation{
			{City: "London", Temperature: 14.3, WindSpeed: 22.1, ObservedAt: observed, UpdatedAt: sync},
		},
		lastSync: &sync,
	}
	srv := New(testConfig(), reader, &fakeEnqueuer{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp weatherResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected one entry per configured city, got %d", len(resp.Data))
	}
	if resp.Data[0].City != "London" || resp.Data[0].Temperature != 14.3 || resp.Data[0].LastUpdated == nil {
		t.Fatalf("unexpected London entry: %+v", resp.Data[0])
	}
	if resp.Data[1].City != "Cairo" || resp.Data[1].LastUpdated != nil {
		t.Fatalf("expected Cairo placeholder, got %+v", resp.Data[1])
	}
	if resp.LastSync == nil {
		t.Fatalf("expected lastSync to be set")
	}
}

func TestHealthz(t *testing.T) {
	srv := New(testConfig(), &fakeReader{}, &fakeEnqueuer{}, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
