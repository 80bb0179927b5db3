package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const serpAPIEndpoint = "https://serpapi.com/search.json"

// SerpAPI queries Google results through serpapi.com.
type SerpAPI struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Query(ctx context.Context, query string, numResults int) ([]Result, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("serpapi: api key not set")
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = serpAPIEndpoint
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(numResults))
	params.Set("api_key", s.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi: status %d", resp.StatusCode)
	}

	var body serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("serpapi: decode: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", body.Error)
	}

	out := make([]Result, 0, len(body.OrganicResults))
	for _, r := range body.OrganicResults {
		out = append(out, Result{Title: r.Title, Snippet: r.Snippet, Link: r.Link})
	}
	return out, nil
}
