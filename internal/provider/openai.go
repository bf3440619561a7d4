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

// OpenAI generates answers through an OpenAI-compatible chat-completion
// API (the hosted variant).
type OpenAI struct {
	name        string
	apiKey      string
	orgID       string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64

	httpClient  *http.Client
	initialized atomic.Bool
}

// NewOpenAI creates an uninitialized OpenAI provider with the given
// registration name.
func NewOpenAI(name string) *OpenAI {
	return &OpenAI{name: name}
}

// Initialize configures the API client. A missing API key is an
// unrecoverable misconfiguration.
func (p *OpenAI) Initialize(opts map[string]any) error {
	p.apiKey = optString(opts, "api_key", "")
	if p.apiKey == "" {
		return fmt.Errorf("%w: openai api_key is required", domain.ErrConfiguration)
	}

	p.orgID = optString(opts, "org_id", "")
	p.baseURL = optString(opts, "base_url", "https://api.openai.com/v1")
	p.model = optString(opts, "model", "gpt-4o-mini")
	p.maxTokens = optInt(opts, "max_tokens", 512)
	p.temperature = optFloat(opts, "temperature", 0.1)
	p.httpClient = newHTTPClient(time.Duration(optInt(opts, "timeout_sec", 0)) * time.Second)

	p.initialized.Store(true)
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Generate produces an answer with the hosted chat-completion API.
func (p *OpenAI) Generate(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	if !p.initialized.Load() {
		return nil, domain.ErrNotInitialized
	}

	messages := make([]chatMessage, 0, 2)
	if req.Context != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Context})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Query})

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = int(*req.MaxTokens)
	}
	temperature := p.temperature
	if req.Temperature != nil {
		temperature = float64(*req.Temperature)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.orgID != "" {
		httpReq.Header.Set("OpenAI-Organization", p.orgID)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai generation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai API error: %s - %s", resp.Status, string(respBody))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}

	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai returned an empty completion")
	}

	return &domain.QueryResponse{
		Content:    out.Choices[0].Message.Content,
		ModelName:  p.name,
		TokensUsed: out.Usage.TotalTokens,
		Success:    true,
		Metadata:   map[string]any{"provider": string(domain.KindOpenAI), "model": p.model},
	}, nil
}

// IsAvailable reports readiness.
func (p *OpenAI) IsAvailable() bool {
	return p.initialized.Load()
}

// Info returns static provider metadata.
func (p *OpenAI) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:          p.name,
		Kind:          domain.KindOpenAI,
		Model:         p.model,
		ContextLength: 128000,
		Capabilities:  []string{"text_generation", "chat", "analysis", "coding"},
	}
}

// Cleanup releases the HTTP client. Idempotent.
func (p *OpenAI) Cleanup() {
	p.initialized.Store(false)
	p.httpClient = nil
}
