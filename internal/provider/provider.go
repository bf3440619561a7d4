// Package provider implements answer-generating backend adapters.
package provider

import (
	"fmt"
	"net/http"
	"time"

	"tabletalk/internal/domain"
)

const defaultRequestTimeout = 120 * time.Second

// newHTTPClient creates an HTTP client with pooled connections for
// provider API calls.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// buildPrompt renders a request into a single prompt string for
// completion-style backends.
func buildPrompt(req *domain.QueryRequest) string {
	if req.Context != "" {
		return fmt.Sprintf("Context: %s\n\nQuestion: %s", req.Context, req.Query)
	}
	return req.Query
}

// Option accessors. TOML and JSON decoding produce int64/float64 for
// numbers, so the numeric accessors accept both.

func optString(opts map[string]any, key, fallback string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func optInt(opts map[string]any, key string, fallback int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func optFloat(opts map[string]any, key string, fallback float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return fallback
}
