package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Report is the slice of weather state pricing cares about.
type Report struct {
	Condition string  `json:"condition"` // clear, rain, snow, storm, cloudy, fog
	TempC     float64 `json:"temp_c"`
}

// Default is the fallback used whenever the provider is unreachable.
// Pricing must never fail because the weather service is down.
func Default() Report {
	return Report{Condition: "clear", TempC: 15}
}

// Client is what the pricing engine consumes.
type Client interface {
	Current(ctx context.Context, lat, lng float64) (Report, error)
}

// HTTPClient queries a weather provider over HTTP.
type HTTPClient struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (c *HTTPClient) Current(ctx context.Context, lat, lng float64) (Report, error) {
	url := fmt.Sprintf("%s/v1/current?lat=%.6f&lng=%.6f", c.Endpoint, lat, lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Report{}, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("weather provider status %d", resp.StatusCode)
	}
	var out Report
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Report{}, err
	}
	if out.Condition == "" {
		return Report{}, fmt.Errorf("weather provider returned empty condition")
	}
	return out, nil
}
