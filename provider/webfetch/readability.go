// Package webfetch implements toolregistry.FetchProvider using
// go-shiori/go-readability for HTML-to-text extraction. It is kept outside
// the core orchestrator packages deliberately: the core's Non-goals exclude
// HTML parsing, so this adapter is the only place that concern lives.
package webfetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/brightfield-labs/deepresearch/toolregistry"
)

// Client implements toolregistry.FetchProvider by fetching a URL and
// running readability extraction on the response body.
type Client struct {
	HTTP *http.Client
}

// New constructs a Client with a sensible default timeout.
func New() *Client {
	return &Client{HTTP: &http.Client{Timeout: 20 * time.Second}}
}

// Fetch implements toolregistry.FetchProvider.
func (c *Client) Fetch(ctx context.Context, rawURL string) (toolregistry.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return toolregistry.FetchResult{}, fmt.Errorf("%w: invalid url: %v", toolregistry.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return toolregistry.FetchResult{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return toolregistry.FetchResult{}, fmt.Errorf("%w: %v", toolregistry.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return toolregistry.FetchResult{}, toolregistry.ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return toolregistry.FetchResult{}, fmt.Errorf("%w: fetch returned %d", toolregistry.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return toolregistry.FetchResult{}, fmt.Errorf("%w: fetch returned %d", toolregistry.ErrPermanent, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return toolregistry.FetchResult{}, fmt.Errorf("%w: readability: %v", toolregistry.ErrPermanent, err)
	}

	return toolregistry.FetchResult{
		URL:   rawURL,
		Title: article.Title,
		Text:  article.TextContent,
	}, nil
}
