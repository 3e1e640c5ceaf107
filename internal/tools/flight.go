package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// FlightConfig configures the Amadeus-compatible flight provider.
type FlightConfig struct {
	Endpoint     string // base URL, e.g. https://test.api.amadeus.com
	ClientID     string
	ClientSecret string
	MaxOffers    int
	Timeout      time.Duration
}

// FlightTool searches flight offers through an Amadeus-compatible API. It
// resolves city names to IATA codes, fetches an OAuth token on demand, and
// returns offers sorted cheapest first by the provider.
type FlightTool struct {
	config FlightConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewFlightTool creates the flight search tool.
func NewFlightTool(cfg FlightConfig) *FlightTool {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxOffers == 0 {
		cfg.MaxOffers = 5
	}
	return &FlightTool{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Category returns the tool identifier.
func (t *FlightTool) Category() trip.ToolCategory { return trip.ToolFlight }

// Execute searches offers for origin/destination/date.
func (t *FlightTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	if t.config.Endpoint == "" || t.config.ClientID == "" {
		return nil, llm.ErrUnavailable
	}

	originCode, err := t.cityCode(ctx, req.Param("origin"))
	if err != nil {
		return nil, fmt.Errorf("resolve origin: %w", err)
	}
	destCode, err := t.cityCode(ctx, req.Param("destination"))
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}

	adults := req.Param("travelers")
	if adults == "" {
		adults = "1"
	}

	q := url.Values{}
	q.Set("originLocationCode", originCode)
	q.Set("destinationLocationCode", destCode)
	q.Set("departureDate", req.Param("date"))
	q.Set("adults", adults)
	q.Set("max", strconv.Itoa(t.config.MaxOffers))
	q.Set("currencyCode", "USD")

	var resp flightOffersResponse
	if err := t.get(ctx, "/v2/shopping/flight-offers", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no offers for %s-%s", ErrInvalidResponse, originCode, destCode)
	}

	offers := make([]trip.FlightOffer, 0, len(resp.Data))
	for _, d := range resp.Data {
		price, err := strconv.ParseFloat(d.Price.GrandTotal, 64)
		if err != nil {
			continue
		}
		offer := trip.FlightOffer{
			Price:    price,
			Currency: d.Price.Currency,
		}
		if len(d.Itineraries) > 0 && len(d.Itineraries[0].Segments) > 0 {
			first := d.Itineraries[0].Segments[0]
			last := d.Itineraries[0].Segments[len(d.Itineraries[0].Segments)-1]
			offer.Airline = first.CarrierCode
			offer.DepartureAirport = first.Departure.IataCode
			offer.ArrivalAirport = last.Arrival.IataCode
			offer.DepartureTime = first.Departure.At
		}
		offers = append(offers, offer)
	}
	if len(offers) == 0 {
		return nil, fmt.Errorf("%w: offers present but unparseable", ErrInvalidResponse)
	}

	return &trip.ToolPayload{Flights: offers}, nil
}

// cityCode resolves a city name to an IATA city code via the locations API.
func (t *FlightTool) cityCode(ctx context.Context, city string) (string, error) {
	if city == "" {
		return "", fmt.Errorf("empty city name")
	}
	if isIATACode(city) {
		return strings.ToUpper(city), nil
	}

	q := url.Values{}
	q.Set("keyword", city)
	q.Set("subType", "CITY")

	var resp locationsResponse
	if err := t.get(ctx, "/v1/reference-data/locations", q, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].IataCode == "" {
		return "", fmt.Errorf("%w: no IATA code for %q", ErrInvalidResponse, city)
	}
	return resp.Data[0].IataCode, nil
}

// get performs one authenticated GET against the flight API.
func (t *FlightTool) get(ctx context.Context, path string, q url.Values, out any) error {
	token, err := t.accessToken(ctx)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", t.config.Endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, llm.MaxErrorBodySize))
		return fmt.Errorf("flight API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// accessToken returns a cached OAuth token, refreshing when near expiry.
func (t *FlightTool) accessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.tokenExpiry) {
		return t.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.config.ClientID)
	form.Set("client_secret", t.config.ClientSecret)

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		t.config.Endpoint+"/v1/security/oauth2/token",
		bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, llm.MaxErrorBodySize))
		return "", fmt.Errorf("token error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrInvalidResponse)
	}

	t.token = tok.AccessToken
	// Refresh a minute early so in-flight calls do not race expiry.
	t.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return t.token, nil
}

func isIATACode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

type flightOffersResponse struct {
	Data []struct {
		Price struct {
			Currency   string `json:"currency"`
			GrandTotal string `json:"grandTotal"`
		} `json:"price"`
		Itineraries []struct {
			Segments []struct {
				CarrierCode string `json:"carrierCode"`
				Departure   struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"departure"`
				Arrival struct {
					IataCode string `json:"iataCode"`
				} `json:"arrival"`
			} `json:"segments"`
		} `json:"itineraries"`
	} `json:"data"`
}

type locationsResponse struct {
	Data []struct {
		IataCode string `json:"iataCode"`
	} `json:"data"`
}
