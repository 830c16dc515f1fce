// Package websearch implements toolregistry.SearchProvider against a
// Tavily-shaped HTTP JSON search API: POST a query, get back ranked
// {url,title,content} hits. Any compatible search API can be pointed at via
// BaseURL.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brightfield-labs/deepresearch/toolregistry"
)

// Client implements toolregistry.SearchProvider over an HTTP JSON API.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

// New constructs a Client with sensible defaults.
func New(baseURL, apiKey string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 20 * time.Second},
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements toolregistry.SearchProvider.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]toolregistry.SearchHit, error) {
	body, err := json.Marshal(searchRequest{APIKey: c.APIKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, toolregistry.ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: search provider returned %d", toolregistry.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: search provider returned %d", toolregistry.ErrPermanent, resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", toolregistry.ErrPermanent, err)
	}

	hits := make([]toolregistry.SearchHit, 0, len(sr.Results))
	for _, r := range sr.Results {
		hits = append(hits, toolregistry.SearchHit{URL: r.URL, Title: r.Title, Snippet: r.Content})
	}
	return hits, nil
}

func classifyNetErr(err error) error {
	return fmt.Errorf("%w: %v", toolregistry.ErrTransient, err)
}
