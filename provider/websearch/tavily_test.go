package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfield-labs/deepresearch/toolregistry"
)

func TestSearchParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		w.Write([]byte(`{"results":[{"url":"https://a.example","title":"A","content":"snippet a"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	hits, err := c.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://a.example", hits[0].URL)
	assert.Equal(t, "snippet a", hits[0].Snippet)
}

func TestSearchClassifiesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, toolregistry.ErrRateLimited)
}

func TestSearchClassifiesServerErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, toolregistry.ErrTransient)
}

func TestSearchClassifiesClientErrorAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, toolregistry.ErrPermanent)
}

func TestSearchClassifiesNetworkFailureAsTransient(t *testing.T) {
	c := New("http://127.0.0.1:0", "key")
	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, toolregistry.ErrTransient)
	assert.False(t, errors.Is(err, toolregistry.ErrPermanent))
}
