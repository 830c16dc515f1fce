package toolregistry

import (
	"context"
	"encoding/json"
)

// webSearchArgs mirrors WebSearchSpec's schema.
type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// WebSearchResult is the Value carried by a successful web_search tools.Result.
type WebSearchResult struct {
	Hits []SearchHit `json:"hits"`
}

// webFetchArgs mirrors WebFetchSpec's schema.
type webFetchArgs struct {
	URL string `json:"url"`
}

// WebFetchResult is the Value carried by a successful web_fetch tools.Result.
type WebFetchResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// RegisterCoreTools binds web_search and web_fetch to the given providers.
// run_subagents and complete_task are control-flow tools: the caller
// (orchestrator.buildRegistry) registers their specs, and the lead and
// subagent loops intercept those calls inline, since acting on them
// requires orchestration state (the subagent pool, the agent's own loop)
// this package deliberately does not own.
func RegisterCoreTools(reg *Registry, search SearchProvider, fetch FetchProvider) {
	reg.Register(WebSearchSpec(), func(ctx context.Context, payload json.RawMessage) (any, error) {
		var args webSearchArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		if args.MaxResults <= 0 {
			args.MaxResults = 5
		}
		hits, err := search.Search(ctx, args.Query, args.MaxResults)
		if err != nil {
			return nil, err
		}
		return WebSearchResult{Hits: hits}, nil
	})

	reg.Register(WebFetchSpec(), func(ctx context.Context, payload json.RawMessage) (any, error) {
		var args webFetchArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		res, err := fetch.Fetch(ctx, args.URL)
		if err != nil {
			return nil, err
		}
		return WebFetchResult{URL: res.URL, Title: res.Title, Text: res.Text}, nil
	})
}
