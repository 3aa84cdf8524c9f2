package models

import (
	"time"
)

// Job status values persisted in Postgres.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// JobTypeFetchWeather is the only payload type carried by the queue.
const JobTypeFetchWeather = "fetch-weather"

// Job is one recorded attempt to refresh weather for the full city set.
type Job struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CityTarget identifies one location to fetch. Name is the upsert key
// for the observations table.
type CityTarget struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// JobPayload is the message carried by the queue from producer to worker.
type JobPayload struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Cities    []CityTarget `json:"cities"`
	CreatedAt time.Time    `json:"createdAt"`
}

// WeatherObservation is the latest reading for one city. ObservedAt is
// the provider-reported time, UpdatedAt the local write time.
type WeatherObservation struct {
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	WindSpeed   float64   `json:"wind_speed"`
	ObservedAt  time.Time `json:"observed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
