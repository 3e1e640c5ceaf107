package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// forecastHorizon is how far ahead the daily forecast endpoint can see.
// Dates beyond it fall back to current conditions.
const forecastHorizon = 16 * 24 * time.Hour

// WeatherConfig configures the Open-Meteo weather provider.
type WeatherConfig struct {
	GeocodeEndpoint  string // e.g. https://geocoding-api.open-meteo.com
	ForecastEndpoint string // e.g. https://api.open-meteo.com
	Timeout          time.Duration
}

// WeatherTool fetches a daily forecast for the travel date, geocoding the
// destination first. When the date is outside the forecast horizon it
// reports current conditions instead, marked as such.
type WeatherTool struct {
	config WeatherConfig
	client *http.Client
	now    func() time.Time
}

// NewWeatherTool creates the weather tool.
func NewWeatherTool(cfg WeatherConfig) *WeatherTool {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WeatherTool{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Category returns the tool identifier.
func (t *WeatherTool) Category() trip.ToolCategory { return trip.ToolWeather }

// Execute resolves the destination and fetches conditions for the date.
func (t *WeatherTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	if t.config.GeocodeEndpoint == "" || t.config.ForecastEndpoint == "" {
		return nil, llm.ErrUnavailable
	}

	lat, lon, err := t.geocode(ctx, req.Param("destination"))
	if err != nil {
		return nil, err
	}

	date := req.Param("date")
	if inHorizon(t.now(), date) {
		snap, err := t.dailyForecast(ctx, lat, lon, date)
		if err == nil {
			return &trip.ToolPayload{Weather: snap}, nil
		}
		// Fall through to current conditions on forecast failure.
	}

	snap, err := t.currentConditions(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	snap.Date = date
	return &trip.ToolPayload{Weather: snap}, nil
}

func (t *WeatherTool) geocode(ctx context.Context, name string) (float64, float64, error) {
	if name == "" {
		return 0, 0, fmt.Errorf("empty destination")
	}
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")

	var resp struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := t.getJSON(ctx, t.config.GeocodeEndpoint+"/v1/search?"+q.Encode(), &resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Results) == 0 {
		return 0, 0, fmt.Errorf("%w: no geocoding result for %q", ErrInvalidResponse, name)
	}
	return resp.Results[0].Latitude, resp.Results[0].Longitude, nil
}

func (t *WeatherTool) dailyForecast(ctx context.Context, lat, lon float64, date string) (*trip.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min")
	q.Set("start_date", date)
	q.Set("end_date", date)
	q.Set("timezone", "auto")

	var resp struct {
		Daily struct {
			Time    []string  `json:"time"`
			Code    []int     `json:"weather_code"`
			TempMax []float64 `json:"temperature_2m_max"`
			TempMin []float64 `json:"temperature_2m_min"`
		} `json:"daily"`
	}
	if err := t.getJSON(ctx, t.config.ForecastEndpoint+"/v1/forecast?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Daily.Time) == 0 || len(resp.Daily.Code) == 0 {
		return nil, fmt.Errorf("%w: empty daily forecast", ErrInvalidResponse)
	}

	snap := &trip.WeatherSnapshot{
		Date:    resp.Daily.Time[0],
		Summary: weatherSummary(resp.Daily.Code[0]),
	}
	if len(resp.Daily.TempMax) > 0 {
		snap.TempMaxC = resp.Daily.TempMax[0]
	}
	if len(resp.Daily.TempMin) > 0 {
		snap.TempMinC = resp.Daily.TempMin[0]
	}
	return snap, nil
}

func (t *WeatherTool) currentConditions(ctx context.Context, lat, lon float64) (*trip.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current_weather", "true")

	var resp struct {
		Current struct {
			Temperature float64 `json:"temperature"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err := t.getJSON(ctx, t.config.ForecastEndpoint+"/v1/forecast?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	return &trip.WeatherSnapshot{
		Summary:  weatherSummary(resp.Current.WeatherCode),
		TempMaxC: resp.Current.Temperature,
		TempMinC: resp.Current.Temperature,
		Current:  true,
	}, nil
}

func (t *WeatherTool) getJSON(ctx context.Context, rawURL string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, llm.MaxErrorBodySize))
		return fmt.Errorf("weather API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// inHorizon reports whether the travel date falls inside the daily forecast
// window.
func inHorizon(now time.Time, date string) bool {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	today := now.Truncate(24 * time.Hour)
	return !d.Before(today) && d.Sub(today) <= forecastHorizon
}

// weatherSummary maps WMO weather interpretation codes to short phrases.
func weatherSummary(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
