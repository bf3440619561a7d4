// Package pipeline dispatches query requests to a registry of providers
// with ordered fallback.
//
// Provider failure is an expected outcome, not an exception: each attempt
// yields an explicit (response, error) pair consumed by the dispatch loop.
// Process never fails to the caller; when every configured provider has
// failed it returns a fixed sentinel response with Success=false.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tabletalk/internal/domain"
	"tabletalk/internal/telemetry"
)

// Sentinel response values returned when every attempt failed.
const (
	SentinelContent = "All providers failed"
	SentinelModel   = "none"
	SentinelError   = "all configured providers are unavailable"
)

// Pipeline routes requests through an active provider with an ordered
// fallback chain.
//
// The registry is expected to be mutated during setup and administration
// only; steady-state Process calls may run concurrently, but callers must
// serialize post-startup administrative changes externally.
type Pipeline struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	active    string
	fallback  []string

	// attemptTimeout bounds each provider attempt when non-zero. Zero
	// preserves the unbounded behavior: a slow active provider never
	// yields to fallback.
	attemptTimeout time.Duration

	metrics *telemetry.Metrics
}

// New creates an empty pipeline. Metrics may be nil.
func New(metrics *telemetry.Metrics) *Pipeline {
	return &Pipeline{
		providers: make(map[string]domain.Provider),
		metrics:   metrics,
	}
}

// SetAttemptTimeout configures the per-attempt timeout. Zero disables it.
func (p *Pipeline) SetAttemptTimeout(d time.Duration) {
	p.mu.Lock()
	p.attemptTimeout = d
	p.mu.Unlock()
}

// Register stores or overwrites a provider registration. Registration
// does not activate the provider.
func (p *Pipeline) Register(name string, provider domain.Provider) {
	p.mu.Lock()
	p.providers[name] = provider
	p.mu.Unlock()
	slog.Info("Registered provider", "provider", name)
}

// SetActive sets the active provider. It fails (returns false) when the
// name is unregistered or the provider reports unavailable right now;
// availability is re-checked here because it can change after
// registration.
func (p *Pipeline) SetActive(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	provider, ok := p.providers[name]
	if !ok {
		slog.Error("Provider not found", "provider", name)
		return false
	}
	if !provider.IsAvailable() {
		slog.Error("Provider is not available", "provider", name)
		return false
	}

	p.active = name
	slog.Info("Active provider set", "provider", name)
	return true
}

// SetFallbackChain replaces the fallback order. Existence is checked per
// dispatch, not here.
func (p *Pipeline) SetFallbackChain(names []string) {
	chain := make([]string, len(names))
	copy(chain, names)

	p.mu.Lock()
	p.fallback = chain
	p.mu.Unlock()
	slog.Info("Fallback chain set", "chain", chain)
}

// Active returns the current active provider name, or "".
func (p *Pipeline) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// FallbackChain returns a copy of the configured fallback order.
func (p *Pipeline) FallbackChain() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	chain := make([]string, len(p.fallback))
	copy(chain, p.fallback)
	return chain
}

// Providers returns a snapshot of the registry.
func (p *Pipeline) Providers() map[string]domain.Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snapshot := make(map[string]domain.Provider, len(p.providers))
	for name, provider := range p.providers {
		snapshot[name] = provider
	}
	return snapshot
}

// Info returns provider metadata for every registration.
func (p *Pipeline) Info() map[string]domain.ProviderInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	infos := make(map[string]domain.ProviderInfo, len(p.providers))
	for name, provider := range p.providers {
		infos[name] = provider.Info()
	}
	return infos
}

// Process dispatches a request: active provider first, then the fallback
// chain in declared order, returning the first success. When everything
// fails it returns the sentinel response. This method never returns an
// error.
func (p *Pipeline) Process(ctx context.Context, req *domain.QueryRequest) *domain.QueryResponse {
	p.mu.RLock()
	active := p.active
	chain := p.fallback
	providers := p.providers
	p.mu.RUnlock()

	if active != "" {
		if provider, ok := providers[active]; ok {
			resp := p.attempt(ctx, active, provider, req)
			if resp.Success {
				return resp
			}
			slog.Warn("Active provider failed",
				"provider", active,
				"error", resp.ErrorMessage,
				"request_id", req.RequestID,
			)
		}
	}

	if p.metrics != nil && len(chain) > 0 {
		p.metrics.FallbackInvocations.Inc()
	}

	for _, name := range chain {
		provider, ok := providers[name]
		if !ok {
			continue
		}
		slog.Info("Trying fallback provider", "provider", name, "request_id", req.RequestID)
		resp := p.attempt(ctx, name, provider, req)
		if resp.Success {
			return resp
		}
		slog.Warn("Fallback provider failed",
			"provider", name,
			"error", resp.ErrorMessage,
			"request_id", req.RequestID,
		)
	}

	if p.metrics != nil {
		p.metrics.PipelineExhausted.Inc()
	}
	return &domain.QueryResponse{
		Content:      SentinelContent,
		ModelName:    SentinelModel,
		Success:      false,
		ErrorMessage: SentinelError,
	}
}

// attempt wraps one provider generation with timing. Wall-clock elapsed
// time is recorded on the returned response whether the attempt succeeded
// or not, and a failing attempt is converted into a Success=false
// response consumed by the dispatch loop.
func (p *Pipeline) attempt(ctx context.Context, name string, provider domain.Provider, req *domain.QueryRequest) *domain.QueryResponse {
	if !provider.IsAvailable() {
		return &domain.QueryResponse{
			ModelName:    name,
			Success:      false,
			ErrorMessage: domain.ErrUnavailable.Error(),
		}
	}

	if p.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := provider.Generate(ctx, req)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.ProviderLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	}

	if err != nil {
		if p.metrics != nil {
			p.metrics.ProviderAttempts.WithLabelValues(name, "failure").Inc()
		}
		return &domain.QueryResponse{
			ModelName:    name,
			ResponseTime: elapsed,
			Success:      false,
			ErrorMessage: err.Error(),
		}
	}

	if p.metrics != nil {
		p.metrics.ProviderAttempts.WithLabelValues(name, "success").Inc()
	}
	resp.ResponseTime = elapsed
	return resp
}
