package toolregistry

import "context"

// SearchHit is one ranked result returned by a SearchProvider.
type SearchHit struct {
	URL     string
	Title   string
	Snippet string
}

// SearchProvider is the external collaborator behind web_search. The core
// does not implement search ranking or scraping itself; concrete adapters
// live under provider/websearch.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchHit, error)
}

// FetchResult is the extracted content returned by a FetchProvider.
type FetchResult struct {
	URL   string
	Title string
	Text  string
}

// FetchProvider is the external collaborator behind web_fetch. HTML
// parsing and readability extraction are deliberately kept out of the
// core; concrete adapters live under provider/webfetch.
type FetchProvider interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}
