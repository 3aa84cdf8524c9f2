package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/models"
)

// maxResponseBytes bounds provider response bodies; Open-Meteo current
// readings are a few hundred bytes.
const maxResponseBytes = 1 << 20

// Client fetches current conditions from an Open-Meteo-compatible
// endpoint. The HTTP client carries a finite timeout so one
// unresponsive city cannot stall the worker loop.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a provider client from config.
func NewClient(cfg config.Config) *Client {
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    cfg.OpenMeteoURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type currentConditions struct {
	Temperature float64 `json:"temperature_2m"`
	WindSpeed   float64 `json:"windspeed_10m"`
	Time        string  `json:"time"`
}

type forecastResponse struct {
	Current currentConditions `json:"current"`
}

// Fetch requests current temperature and wind speed for one city and
// returns a normalized observation. ObservedAt is the provider-reported
// time; UpdatedAt is left for the store to fill on write.
func (c *Client) Fetch(ctx context.Context, city models.CityTarget) (models.WeatherObservation, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", city.Latitude))
	q.Set("longitude", fmt.Sprintf("%g", city.Longitude))
	q.Set("current", "temperature_2m,windspeed_10m")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return models.WeatherObservation{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.WeatherObservation{}, fmt.Errorf("fetch weather for %s: %w", city.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.WeatherObservation{}, fmt.Errorf("fetch weather for %s: status %d", city.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.WeatherObservation{}, fmt.Errorf("read response for %s: %w", city.Name, err)
	}

	var parsed forecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.WeatherObservation{}, fmt.Errorf("decode response for %s: %w", city.Name, err)
	}

	observedAt, err := parseObservationTime(parsed.Current.Time)
	if err != nil {
		return models.WeatherObservation{}, fmt.Errorf("parse observation time for %s: %w", city.Name, err)
	}

	return models.WeatherObservation{
		City:        city.Name,
		Temperature: parsed.Current.Temperature,
		WindSpeed:   parsed.Current.WindSpeed,
		ObservedAt:  observedAt,
	}, nil
}

// parseObservationTime accepts the minute-resolution ISO-8601 form
// Open-Meteo emits ("2006-01-02T15:04") as well as full RFC 3339.
func parseObservationTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	if t, err := time.Parse("2006-01-02T15:04", v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
