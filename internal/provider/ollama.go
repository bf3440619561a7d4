package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"tabletalk/internal/domain"
)

// Ollama generates answers through a locally running Ollama server. This
// is the "local model" variant: no credentials, data never leaves the host.
type Ollama struct {
	name        string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64

	httpClient  *http.Client
	initialized atomic.Bool
}

// NewOllama creates an uninitialized Ollama provider with the given
// registration name.
func NewOllama(name string) *Ollama {
	return &Ollama{name: name}
}

// Initialize connects to the Ollama server and verifies it is reachable.
// An unreachable server is a recoverable failure: the provider stays
// unavailable and may be initialized again later.
func (p *Ollama) Initialize(opts map[string]any) error {
	p.baseURL = optString(opts, "base_url", "http://localhost:11434")
	p.model = optString(opts, "model", "llama3.2")
	p.maxTokens = optInt(opts, "max_tokens", 512)
	p.temperature = optFloat(opts, "temperature", 0.1)
	p.httpClient = newHTTPClient(time.Duration(optInt(opts, "timeout_sec", 0)) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama setup: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama server unreachable at %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama server returned %s", resp.Status)
	}

	p.initialized.Store(true)
	return nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	EvalCount       int64  `json:"eval_count"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
}

// Generate produces an answer with the local model.
func (p *Ollama) Generate(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	if !p.initialized.Load() {
		return nil, domain.ErrNotInitialized
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = int(*req.MaxTokens)
	}
	temperature := p.temperature
	if req.Temperature != nil {
		temperature = float64(*req.Temperature)
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: buildPrompt(req),
		Stream: false,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error: %s - %s", resp.Status, string(respBody))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}

	if out.Response == "" {
		return nil, fmt.Errorf("ollama returned an empty completion")
	}

	return &domain.QueryResponse{
		Content:    out.Response,
		ModelName:  p.name,
		TokensUsed: out.EvalCount + out.PromptEvalCount,
		Success:    true,
		Metadata:   map[string]any{"provider": string(domain.KindOllama), "model": p.model},
	}, nil
}

// IsAvailable reports readiness.
func (p *Ollama) IsAvailable() bool {
	return p.initialized.Load()
}

// Info returns static provider metadata.
func (p *Ollama) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:          p.name,
		Kind:          domain.KindOllama,
		Model:         p.model,
		ContextLength: 4096,
		Capabilities:  []string{"text_generation", "qa", "analysis"},
	}
}

// Cleanup releases the HTTP client. Idempotent.
func (p *Ollama) Cleanup() {
	p.initialized.Store(false)
	p.httpClient = nil
}
