package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(articleHTML))
		case "/data":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(time.Second)
	ctx := context.Background()

	html, err := fetcher.Fetch(ctx, server.URL+"/article")
	require.NoError(t, err)
	assert.Contains(t, html, "Demam Berdarah Dengue")

	_, err = fetcher.Fetch(ctx, server.URL+"/data")
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	_, err = fetcher.Fetch(ctx, server.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}
