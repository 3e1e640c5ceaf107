package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// PlacesConfig configures the Geoapify-compatible places provider.
type PlacesConfig struct {
	Endpoint   string // base URL, e.g. https://api.geoapify.com
	APIKey     string
	RadiusM    int // search radius around the destination center
	MaxResults int
	Timeout    time.Duration
}

// PlacesTool lists points of interest near the destination. It geocodes the
// destination to a center point, then queries tourism categories around it.
type PlacesTool struct {
	config PlacesConfig
	client *http.Client
}

// NewPlacesTool creates the places tool.
func NewPlacesTool(cfg PlacesConfig) *PlacesTool {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RadiusM == 0 {
		cfg.RadiusM = 5000
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 8
	}
	return &PlacesTool{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Category returns the tool identifier.
func (t *PlacesTool) Category() trip.ToolCategory { return trip.ToolMap }

// Execute returns tourist points of interest near the destination.
func (t *PlacesTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	if t.config.Endpoint == "" || t.config.APIKey == "" {
		return nil, llm.ErrUnavailable
	}

	lat, lon, err := t.geocode(ctx, req.Param("destination"))
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("categories", "tourism.sights,tourism.attraction,entertainment.museum")
	q.Set("filter", fmt.Sprintf("circle:%.4f,%.4f,%d", lon, lat, t.config.RadiusM))
	q.Set("limit", strconv.Itoa(t.config.MaxResults))
	q.Set("apiKey", t.config.APIKey)

	var resp struct {
		Features []struct {
			Properties struct {
				Name       string   `json:"name"`
				Categories []string `json:"categories"`
				Formatted  string   `json:"formatted"`
				Lat        float64  `json:"lat"`
				Lon        float64  `json:"lon"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := t.getJSON(ctx, t.config.Endpoint+"/v2/places?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	places := make([]trip.Place, 0, len(resp.Features))
	for _, f := range resp.Features {
		if f.Properties.Name == "" {
			continue
		}
		p := trip.Place{
			Name:    f.Properties.Name,
			Address: f.Properties.Formatted,
			Lat:     f.Properties.Lat,
			Lon:     f.Properties.Lon,
		}
		if len(f.Properties.Categories) > 0 {
			p.Category = f.Properties.Categories[0]
		}
		places = append(places, p)
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: no named places returned", ErrInvalidResponse)
	}

	return &trip.ToolPayload{Places: places}, nil
}

func (t *PlacesTool) geocode(ctx context.Context, name string) (float64, float64, error) {
	if name == "" {
		return 0, 0, fmt.Errorf("empty destination")
	}
	q := url.Values{}
	q.Set("text", name)
	q.Set("limit", "1")
	q.Set("apiKey", t.config.APIKey)

	var resp struct {
		Features []struct {
			Properties struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := t.getJSON(ctx, t.config.Endpoint+"/v1/geocode/search?"+q.Encode(), &resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Features) == 0 {
		return 0, 0, fmt.Errorf("%w: no geocoding result for %q", ErrInvalidResponse, name)
	}
	return resp.Features[0].Properties.Lat, resp.Features[0].Properties.Lon, nil
}

func (t *PlacesTool) getJSON(ctx context.Context, rawURL string, out any) error {
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
		return fmt.Errorf("places API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
