// Package sourcetable implements the deduplicated source registry shared by
// every subagent in a session: web_search and web_fetch results are merged
// into it keyed by normalized URL, and a source's citation index is fixed at
// first-seen insertion order, never renumbered as later duplicates arrive.
package sourcetable

import (
	"net/url"
	"strings"
	"sync"
)

// Source is one deduplicated reference discovered during a session.
type Source struct {
	// Index is the stable, 1-based citation number assigned at first sight.
	Index int
	// URL is the normalized form used as the dedup key.
	URL string
	// Title is the best-known title for this source, updated as richer
	// metadata (e.g. from a later web_fetch) becomes available.
	Title string
	// Snippet holds a short excerpt, typically from the search result that
	// first surfaced the source.
	Snippet string
	// Fetched records whether web_fetch has retrieved full content for
	// this source; a search-only hit has Fetched == false.
	Fetched bool
	// FoundBySubagent records the ID of the subagent that first added this
	// source, for provenance.
	FoundBySubagent string
}

// Table is a mutex-guarded, append-mostly collection of Sources keyed by
// normalized URL. It is safe for concurrent use by multiple subagent
// goroutines within one session.
type Table struct {
	mu      sync.Mutex
	byURL   map[string]*Source
	ordered []*Source
}

// New constructs an empty Table.
func New() *Table {
	return &Table{byURL: make(map[string]*Source)}
}

// trackingQueryKeys lists query parameters that identify a campaign or
// referrer rather than the resource itself; two URLs differing only in
// these keys name the same source and must dedup to one.
var trackingQueryKeys = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"gclid":        true,
	"fbclid":       true,
	"mc_eid":       true,
	"mc_cid":       true,
	"igshid":       true,
	"ref":          true,
	"ref_src":      true,
}

// Normalize canonicalizes a URL for dedup purposes: lowercases scheme and
// host, drops a URL fragment, strips common tracking query keys (the
// utm_* family, gclid, fbclid, mc_eid, and similar), and strips a trailing
// slash. Malformed input is returned trimmed and unchanged so callers
// always get a stable key.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if len(u.RawQuery) > 0 {
		q := u.Query()
		for key := range q {
			if trackingQueryKeys[strings.ToLower(key)] {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	s := u.String()
	s = strings.TrimSuffix(s, "/")
	return s
}

// AddSearchHit records a source discovered via web_search. If the URL is
// already known, its snippet/title are left untouched (first-seen wins for
// citation ordering, and search metadata rarely improves on a prior hit).
// It returns the resulting Source, which callers must not mutate.
func (t *Table) AddSearchHit(subagentID, rawURL, title, snippet string) *Source {
	key := Normalize(rawURL)
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.byURL[key]; ok {
		return existing
	}
	src := &Source{
		Index:           len(t.ordered) + 1,
		URL:             key,
		Title:           title,
		Snippet:         snippet,
		FoundBySubagent: subagentID,
	}
	t.byURL[key] = src
	t.ordered = append(t.ordered, src)
	return src
}

// AddFetch records that web_fetch retrieved full content for a URL,
// creating the Source if web_search had not already surfaced it, and
// filling in its title when none was known; an existing title is kept.
func (t *Table) AddFetch(subagentID, rawURL, title string) *Source {
	key := Normalize(rawURL)
	t.mu.Lock()
	defer t.mu.Unlock()
	src, ok := t.byURL[key]
	if !ok {
		src = &Source{
			Index:           len(t.ordered) + 1,
			URL:             key,
			Title:           title,
			FoundBySubagent: subagentID,
		}
		t.byURL[key] = src
		t.ordered = append(t.ordered, src)
	}
	if title != "" && src.Title == "" {
		src.Title = title
	}
	src.Fetched = true
	return src
}

// Lookup returns the Source for a URL, if known.
func (t *Table) Lookup(rawURL string) (*Source, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	src, ok := t.byURL[Normalize(rawURL)]
	return src, ok
}

// ByIndex returns the Source with the given 1-based citation index.
func (t *Table) ByIndex(index int) (*Source, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 1 || index > len(t.ordered) {
		return nil, false
	}
	return t.ordered[index-1], true
}

// Ordered returns a snapshot of all Sources in first-seen (citation index)
// order. The returned slice is a copy; mutating it does not affect the Table.
func (t *Table) Ordered() []*Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Source, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Len reports the number of distinct sources known to the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ordered)
}
