// Package domain defines core domain types for the tabletalk query engine.
package domain

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// Provider Kinds
// =============================================================================

// Kind identifies a provider backend variant.
type Kind string

const (
	KindOllama  Kind = "ollama"
	KindOpenAI  Kind = "openai"
	KindBedrock Kind = "bedrock"
)

// AllKinds returns all supported provider kinds.
func AllKinds() []Kind {
	return []Kind{KindOllama, KindOpenAI, KindBedrock}
}

// ParseKind parses a provider kind string.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "ollama", "local":
		return KindOllama, true
	case "openai", "gpt":
		return KindOpenAI, true
	case "bedrock", "aws", "aws-bedrock", "aws_bedrock":
		return KindBedrock, true
	default:
		return "", false
	}
}

// =============================================================================
// Query Types
// =============================================================================

// QueryRequest is the standardized input for all generation calls.
// A request is built once per incoming query and never shared across
// concurrent dispatches.
type QueryRequest struct {
	Query       string         `json:"query"`
	Context     string         `json:"context,omitempty"`
	MaxTokens   *int32         `json:"max_tokens,omitempty"`
	Temperature *float32       `json:"temperature,omitempty"`
	UserID      int64          `json:"user_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// RequestID correlates log lines and metrics for one query.
	RequestID string `json:"request_id,omitempty"`
}

// QueryResponse is the standardized output of one dispatch attempt.
// Responses are immutable once constructed.
type QueryResponse struct {
	Content      string         `json:"content"`
	ModelName    string         `json:"model_name"`
	TokensUsed   int64          `json:"tokens_used,omitempty"`
	ResponseTime time.Duration  `json:"response_time"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ResponseSeconds returns the elapsed generation time in seconds.
func (r *QueryResponse) ResponseSeconds() float64 {
	return r.ResponseTime.Seconds()
}

// =============================================================================
// Provider Contract
// =============================================================================

// ProviderInfo contains static descriptive metadata for a provider.
type ProviderInfo struct {
	Name          string   `json:"name"`
	Kind          Kind     `json:"kind"`
	Model         string   `json:"model,omitempty"`
	ContextLength int      `json:"context_length,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
}

// Provider is the capability contract every backend variant implements.
//
// Initialize performs all expensive setup. A recoverable setup failure is
// reported as a plain error and leaves the provider unavailable; an
// unrecoverable misconfiguration (missing credential, missing model path)
// wraps ErrConfiguration and must halt setup of that provider.
//
// Generate returns ErrNotInitialized when called before a successful
// Initialize. It must either return a response with Success=true or an
// error carrying a message; it never returns an empty success response.
type Provider interface {
	Initialize(opts map[string]any) error
	Generate(ctx context.Context, req *QueryRequest) (*QueryResponse, error)

	// IsAvailable is a cheap, side-effect-free readiness check. It reflects
	// Initialize having succeeded and no subsequent Cleanup.
	IsAvailable() bool

	Info() ProviderInfo

	// Cleanup releases held resources. Idempotent; IsAvailable reports
	// false afterwards.
	Cleanup()
}

// =============================================================================
// Validation Types
// =============================================================================

// Reason classifies why a query was rejected.
type Reason string

const (
	ReasonEmpty         Reason = "empty"
	ReasonTooShort      Reason = "too_short"
	ReasonTooLong       Reason = "too_long"
	ReasonUnsafePattern Reason = "unsafe_pattern"
	ReasonInvalidChars  Reason = "invalid_characters"
)

// ValidationResult is the outcome of query validation. Message is empty
// iff the query is valid.
type ValidationResult struct {
	Valid   bool   `json:"is_valid"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"error_message,omitempty"`
}

// =============================================================================
// Benchmark Types
// =============================================================================

// BenchmarkResult summarizes one provider's performance over a query batch.
type BenchmarkResult struct {
	ModelName       string  `json:"model_name"`
	AvgResponseTime float64 `json:"avg_response_time"` // seconds, successful samples only
	SuccessRate     float64 `json:"success_rate"`      // 0..1
	TotalQueries    int     `json:"total_queries"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotInitialized is returned by Generate before a successful Initialize.
	ErrNotInitialized = errors.New("provider not initialized")

	// ErrConfiguration marks unrecoverable provider misconfiguration.
	ErrConfiguration = errors.New("provider configuration error")

	// ErrUnavailable is returned when a provider is registered but not ready.
	ErrUnavailable = errors.New("provider unavailable")
)
