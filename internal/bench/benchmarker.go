// Package bench measures provider performance over a fixed query set.
package bench

import (
	"context"
	"log/slog"
	"math"
	"time"

	"tabletalk/internal/domain"
)

// DefaultQueries is the standard benchmark battery: short factual
// questions representative of dataset lookups.
var DefaultQueries = []string{
	"How many rows are in the dataset?",
	"What columns does the dataset have?",
	"What is the average value of the first numeric column?",
	"Summarize the dataset in one sentence.",
	"Which column has the most distinct values?",
}

// Benchmarker runs timed query batteries against registered providers.
type Benchmarker struct {
	queries []string
}

// New creates a benchmarker with the given query set, falling back to
// DefaultQueries when empty.
func New(queries []string) *Benchmarker {
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	return &Benchmarker{queries: queries}
}

// BenchmarkProvider runs every query against one provider and aggregates
// the timings. A failed attempt is recorded with infinite response time;
// infinite samples are excluded from the average and the throughput
// figure but still count toward TotalQueries, so SuccessRate reflects
// them. When no attempt succeeded AvgResponseTime is +Inf and
// TokensPerSecond is zero.
func (b *Benchmarker) BenchmarkProvider(ctx context.Context, name string, provider domain.Provider) domain.BenchmarkResult {
	var (
		successes    int
		totalElapsed time.Duration
		totalTokens  int64
	)

	for _, query := range b.queries {
		start := time.Now()
		resp, err := provider.Generate(ctx, &domain.QueryRequest{Query: query})
		elapsed := time.Since(start)

		if err != nil || !resp.Success {
			slog.Warn("Benchmark query failed", "provider", name, "query", query)
			continue
		}

		successes++
		totalElapsed += elapsed
		totalTokens += resp.TokensUsed
	}

	result := domain.BenchmarkResult{
		ModelName:       name,
		TotalQueries:    len(b.queries),
		AvgResponseTime: math.Inf(1),
	}
	if len(b.queries) > 0 {
		result.SuccessRate = float64(successes) / float64(len(b.queries))
	}
	if successes > 0 {
		result.AvgResponseTime = totalElapsed.Seconds() / float64(successes)
		if totalElapsed > 0 {
			result.TokensPerSecond = float64(totalTokens) / totalElapsed.Seconds()
		}
	}
	return result
}

// Run benchmarks every provider in the map, silently skipping the ones
// that report unavailable. Results are keyed by registration name.
func (b *Benchmarker) Run(ctx context.Context, providers map[string]domain.Provider) map[string]domain.BenchmarkResult {
	results := make(map[string]domain.BenchmarkResult, len(providers))
	for name, provider := range providers {
		if !provider.IsAvailable() {
			slog.Info("Skipping unavailable provider", "provider", name)
			continue
		}
		slog.Info("Benchmarking provider", "provider", name, "queries", len(b.queries))
		results[name] = b.BenchmarkProvider(ctx, name, provider)
	}
	return results
}
