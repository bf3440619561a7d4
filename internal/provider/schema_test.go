package provider

import (
	"errors"
	"testing"

	"tabletalk/internal/domain"
)

func TestValidateOptions(t *testing.T) {
	t.Run("ollama accepts empty options", func(t *testing.T) {
		if err := ValidateOptions(domain.KindOllama, nil); err != nil {
			t.Errorf("empty ollama options rejected: %v", err)
		}
	})

	t.Run("ollama accepts full options", func(t *testing.T) {
		opts := map[string]any{
			"base_url":    "http://localhost:11434",
			"model":       "llama3.2",
			"max_tokens":  512,
			"temperature": 0.1,
		}
		if err := ValidateOptions(domain.KindOllama, opts); err != nil {
			t.Errorf("valid ollama options rejected: %v", err)
		}
	})

	t.Run("openai requires api_key", func(t *testing.T) {
		err := ValidateOptions(domain.KindOpenAI, map[string]any{"model": "gpt-4o-mini"})
		if err == nil {
			t.Fatal("missing api_key accepted")
		}
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("error does not wrap ErrConfiguration: %v", err)
		}
	})

	t.Run("bedrock requires model_id", func(t *testing.T) {
		err := ValidateOptions(domain.KindBedrock, map[string]any{"region": "us-east-1"})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("missing model_id error = %v, want ErrConfiguration", err)
		}
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		err := ValidateOptions(domain.KindOllama, map[string]any{"basse_url": "typo"})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("typo'd key error = %v, want ErrConfiguration", err)
		}
	})

	t.Run("temperature range enforced", func(t *testing.T) {
		err := ValidateOptions(domain.KindOllama, map[string]any{"temperature": 3.5})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("out-of-range temperature error = %v, want ErrConfiguration", err)
		}
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		err := ValidateOptions(domain.Kind("mystery"), nil)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("unknown kind error = %v, want ErrConfiguration", err)
		}
	})
}

func TestFactoryRejectsBadConfig(t *testing.T) {
	t.Run("openai without key", func(t *testing.T) {
		_, err := New(domain.KindOpenAI, "hosted", map[string]any{})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("New error = %v, want ErrConfiguration", err)
		}
	})

	t.Run("unsupported kind", func(t *testing.T) {
		_, err := New(domain.Kind("quantum"), "q", nil)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("New error = %v, want ErrConfiguration", err)
		}
	})
}

func TestOpenAIInitializeLifecycle(t *testing.T) {
	p := NewOpenAI("hosted")

	if p.IsAvailable() {
		t.Error("available before Initialize")
	}

	if _, err := p.Generate(t.Context(), &domain.QueryRequest{Query: "hi"}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("Generate before init = %v, want ErrNotInitialized", err)
	}

	if err := p.Initialize(map[string]any{"api_key": "sk-test"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !p.IsAvailable() {
		t.Error("unavailable after Initialize")
	}

	info := p.Info()
	if info.Name != "hosted" || info.Kind != domain.KindOpenAI {
		t.Errorf("Info = %+v", info)
	}

	p.Cleanup()
	p.Cleanup() // idempotent
	if p.IsAvailable() {
		t.Error("available after Cleanup")
	}
}
