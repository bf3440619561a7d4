// Package controller wires validation, caching, the dataset fast path
// and the provider pipeline into the query processing flow.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tabletalk/internal/bench"
	"tabletalk/internal/cache"
	"tabletalk/internal/config"
	"tabletalk/internal/dataset"
	"tabletalk/internal/domain"
	"tabletalk/internal/format"
	"tabletalk/internal/pipeline"
	"tabletalk/internal/telemetry"
	"tabletalk/internal/validate"
)

// ValidationError is returned when a query fails validation. The
// embedded result carries the machine-readable reason for API clients.
type ValidationError struct {
	Result domain.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Result.Message)
}

// Result is the outcome of one processed query.
type Result struct {
	RequestID    string        `json:"request_id"`
	Content      string        `json:"content"`
	ModelName    string        `json:"model_name"`
	Success      bool          `json:"success"`
	Cached       bool          `json:"cached"`
	TokensUsed   int64         `json:"tokens_used,omitempty"`
	ResponseTime time.Duration `json:"-"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// ResponseSeconds reports the processing time in seconds for API output.
func (r *Result) ResponseSeconds() float64 {
	return r.ResponseTime.Seconds()
}

// SystemStatus aggregates component state for the stats endpoint.
type SystemStatus struct {
	ActiveProvider string                        `json:"active_provider"`
	FallbackChain  []string                      `json:"fallback_chain"`
	Providers      map[string]domain.ProviderInfo `json:"providers"`
	Cache          cache.Stats                   `json:"cache"`
	Dataset        dataset.Statistics            `json:"dataset"`
	UptimeSeconds  float64                       `json:"uptime_seconds"`
	Timestamp      time.Time                     `json:"timestamp"`
}

// Controller is the main business logic coordinator.
type Controller struct {
	cfg       *config.Config
	validator *validate.Validator
	cache     *cache.Cache
	pipeline  *pipeline.Pipeline
	dataset   *dataset.Store
	formatter *format.Formatter
	metrics   *telemetry.Metrics
	startedAt time.Time
}

// New assembles a controller from its components.
func New(cfg *config.Config, v *validate.Validator, c *cache.Cache, p *pipeline.Pipeline, ds *dataset.Store, m *telemetry.Metrics) *Controller {
	return &Controller{
		cfg:       cfg,
		validator: v,
		cache:     c,
		pipeline:  p,
		dataset:   ds,
		formatter: format.New(cfg.Server.MaxMessageLength),
		metrics:   m,
		startedAt: time.Now(),
	}
}

// ProcessQuery runs a query through validation, the cache, the dataset
// fast path and finally the provider pipeline. It returns a
// *ValidationError for rejected queries; any other outcome, including
// total provider failure, is reported through the Result itself.
func (c *Controller) ProcessQuery(ctx context.Context, query string, userID int64) (*Result, error) {
	requestID := uuid.NewString()
	start := time.Now()

	vr := c.validator.Validate(query)
	if !vr.Valid {
		if c.metrics != nil {
			c.metrics.ValidationRejects.WithLabelValues(string(vr.Reason)).Inc()
			c.metrics.QueriesTotal.WithLabelValues("invalid").Inc()
		}
		return nil, &ValidationError{Result: vr}
	}

	query = c.validator.Sanitize(query)

	if cached, ok := c.cache.Get(query); ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
			c.metrics.QueriesTotal.WithLabelValues("cached").Inc()
		}
		slog.Info("Cache hit", "query", truncate(query, 50), "request_id", requestID)
		return &Result{
			RequestID:    requestID,
			Content:      cached,
			ModelName:    "cache",
			Success:      true,
			Cached:       true,
			ResponseTime: time.Since(start),
		}, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	// Structural questions are answered straight from the dataset,
	// skipping model inference entirely.
	if answer, ok := c.simpleQuery(query); ok {
		c.cache.Put(query, answer)
		if c.metrics != nil {
			c.metrics.QueriesTotal.WithLabelValues("success").Inc()
		}
		c.audit(userID, requestID, query, answer, "dataset")
		return &Result{
			RequestID:    requestID,
			Content:      answer,
			ModelName:    "dataset",
			Success:      true,
			ResponseTime: time.Since(start),
		}, nil
	}

	req := &domain.QueryRequest{
		Query:     query,
		Context:   c.datasetContext(),
		UserID:    userID,
		RequestID: requestID,
	}
	resp := c.pipeline.Process(ctx, req)

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.QueryDuration.Observe(elapsed.Seconds())
	}

	if !resp.Success {
		if c.metrics != nil {
			c.metrics.QueriesTotal.WithLabelValues("failed").Inc()
		}
		return &Result{
			RequestID:    requestID,
			Content:      resp.Content,
			ModelName:    resp.ModelName,
			Success:      false,
			ResponseTime: elapsed,
			ErrorMessage: resp.ErrorMessage,
		}, nil
	}

	content := c.formatter.Clean(resp.Content)
	c.cache.Put(query, content)
	if c.metrics != nil {
		c.metrics.QueriesTotal.WithLabelValues("success").Inc()
		c.metrics.CacheEntries.Set(float64(c.cache.Stats().CachedItems))
	}
	c.audit(userID, requestID, query, content, resp.ModelName)

	return &Result{
		RequestID:    requestID,
		Content:      content,
		ModelName:    resp.ModelName,
		Success:      true,
		TokensUsed:   resp.TokensUsed,
		ResponseTime: elapsed,
	}, nil
}

// simpleQuery answers structural questions about the dataset without
// model inference. Returns false when the query needs a model or the
// dataset lookup failed.
func (c *Controller) simpleQuery(query string) (string, bool) {
	if c.dataset == nil {
		return "", false
	}
	q := strings.ToLower(strings.TrimSpace(query))

	switch {
	case containsAny(q, "how many rows", "row count", "total rows"):
		count, err := c.dataset.RowCount()
		if err != nil {
			slog.Error("Row count lookup failed", "error", err)
			return "", false
		}
		return fmt.Sprintf("The dataset contains **%d** rows.", count), true

	case containsAny(q, "what columns", "column names", "show columns"):
		info, err := c.dataset.TableInfo()
		if err != nil {
			slog.Error("Table info lookup failed", "error", err)
			return "", false
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "**Dataset Columns (%d):**\n", info.ColumnCount)
		for _, col := range info.Columns {
			fmt.Fprintf(&sb, "- %s\n", col.Name)
		}
		return strings.TrimRight(sb.String(), "\n"), true

	case containsAny(q, "table structure", "describe table", "table info"):
		info, err := c.dataset.TableInfo()
		if err != nil {
			slog.Error("Table info lookup failed", "error", err)
			return "", false
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "**Table: %s**\n", info.TableName)
		fmt.Fprintf(&sb, "- Rows: %d\n", info.RowCount)
		fmt.Fprintf(&sb, "- Columns: %d\n\n", info.ColumnCount)
		sb.WriteString("**Column Details:**\n")
		for _, col := range info.Columns {
			fmt.Fprintf(&sb, "- **%s** (%s)\n", col.Name, col.Type)
		}
		return strings.TrimRight(sb.String(), "\n"), true
	}

	return "", false
}

// datasetContext builds the system context sent with model requests so
// providers know the table shape they are answering about.
func (c *Controller) datasetContext() string {
	if c.dataset == nil {
		return ""
	}
	info, err := c.dataset.TableInfo()
	if err != nil {
		return ""
	}
	names := make([]string, len(info.Columns))
	for i, col := range info.Columns {
		names[i] = col.Name
	}
	return fmt.Sprintf(
		"You answer questions about a tabular dataset stored in table %q with %d rows and columns: %s.",
		info.TableName, info.RowCount, strings.Join(names, ", "))
}

// audit records one processed query. The query is truncated and the
// response reduced to its length to keep user content out of the logs.
func (c *Controller) audit(userID int64, requestID, query, response, model string) {
	slog.Info("Query processed",
		"user_id", userID,
		"request_id", requestID,
		"query", truncate(query, 100),
		"response_length", len(response),
		"model_used", model,
	)
}

// Status returns the aggregated system status.
func (c *Controller) Status() SystemStatus {
	status := SystemStatus{
		ActiveProvider: c.pipeline.Active(),
		FallbackChain:  c.pipeline.FallbackChain(),
		Providers:      c.pipeline.Info(),
		Cache:          c.cache.Stats(),
		UptimeSeconds:  time.Since(c.startedAt).Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	if c.dataset != nil {
		status.Dataset = c.dataset.Statistics()
	}
	return status
}

// ClearCache drops every cached response and returns the count removed.
func (c *Controller) ClearCache() int {
	n := c.cache.Clear()
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(0)
	}
	return n
}

// Benchmark runs the benchmark battery against every available provider.
func (c *Controller) Benchmark(ctx context.Context, queries []string) map[string]domain.BenchmarkResult {
	b := bench.New(queries)
	return b.Run(ctx, c.pipeline.Providers())
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
