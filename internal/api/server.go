package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
	"weather-pipeline/internal/ratelimit"
	"weather-pipeline/internal/telemetry"
)

// Reader is the read side of the store the API exposes.
type Reader interface {
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
	ListObservations(ctx context.Context) ([]models.WeatherObservation, error)
	LastSync(ctx context.Context) (*time.Time, error)
}

// Enqueuer triggers an on-demand job through the producer path. The API
// never touches the queue directly.
type Enqueuer interface {
	EnqueueJob(ctx context.Context) (string, error)
}

// Server wires the dashboard-facing HTTP handlers.
type Server struct {
	cfg      config.Config
	store    Reader
	producer Enqueuer
	limiter  *ratelimit.TokenBucket
}

// New constructs the API server. limiter may be nil when rate limiting
// is not configured.
func New(cfg config.Config, st Reader, producer Enqueuer, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		producer: producer,
		limiter:  limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/jobs", s.handleListJobs)
	r.Post("/jobs", s.handleTriggerJob)
	r.Get("/weather", s.handleWeather)
	return r
}

type jobEntry struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type listJobsResponse struct {
	Success bool       `json:"success"`
	Jobs    []jobEntry `json:"jobs"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context(), s.cfg.JobsPageLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job history", err)
		return
	}
	entries := make([]jobEntry, 0, len(jobs))
	for _, j := range jobs {
		entries = append(entries, jobEntry{
			ID:        j.ID,
			Status:    j.Status,
			Timestamp: j.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, listJobsResponse{Success: true, Jobs: entries})
}

type triggerJobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), "rl:jobs")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error", err)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited", nil)
			return
		}
	}

	jobID, err := s.producer.EnqueueJob(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerJobResponse{
		Success: true,
		JobID:   jobID,
		Message: "weather fetch job enqueued",
	})
}

type weatherEntry struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windSpeed"`
	LastUpdated *string `json:"lastUpdated"`
}

type weatherResponse struct {
	Success  bool           `json:"success"`
	Data     []weatherEntry `json:"data"`
	LastSync *string        `json:"lastSync"`
}

// handleWeather returns one entry per configured city, synthesizing a
// placeholder for any city the worker has not written yet.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListObservations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch weather data", err)
		return
	}
	byCity := make(map[string]models.WeatherObservation, len(rows))
	for _, obs := range rows {
		byCity[obs.City] = obs
	}

	data := make([]weatherEntry, 0, len(s.cfg.Cities))
	for _, city := range s.cfg.Cities {
		entry := weatherEntry{City: city.Name}
		if obs, ok := byCity[city.Name]; ok {
			entry.Temperature = obs.Temperature
			entry.WindSpeed = obs.WindSpeed
			entry.LastUpdated = rfc3339Ptr(obs.ObservedAt)
		}
		data = append(data, entry)
	}

	lastSync, err := s.store.LastSync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch last sync", err)
		return
	}
	resp := weatherResponse{Success: true, Data: data}
	if lastSync != nil {
		resp.LastSync = rfc3339Ptr(*lastSync)
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
		log.Printf("%s: %v", msg, err)
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func rfc3339Ptr(t time.Time) *string {
	v := t.UTC().Format(time.RFC3339)
	return &v
}
