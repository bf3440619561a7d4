package provider

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"tabletalk/internal/domain"
)

// Per-variant JSON Schemas for provider options. Options arrive as loose
// key-value maps from configuration; validating them here at construction
// time turns silent missing-key failures into configuration errors.
var optionSchemas = map[domain.Kind]string{
	domain.KindOllama: `{
		"type": "object",
		"properties": {
			"base_url":    {"type": "string"},
			"model":       {"type": "string"},
			"max_tokens":  {"type": "integer", "minimum": 1},
			"temperature": {"type": "number", "minimum": 0, "maximum": 2},
			"timeout_sec": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`,
	domain.KindOpenAI: `{
		"type": "object",
		"required": ["api_key"],
		"properties": {
			"api_key":     {"type": "string", "minLength": 1},
			"model":       {"type": "string"},
			"base_url":    {"type": "string"},
			"org_id":      {"type": "string"},
			"max_tokens":  {"type": "integer", "minimum": 1},
			"temperature": {"type": "number", "minimum": 0, "maximum": 2},
			"timeout_sec": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`,
	domain.KindBedrock: `{
		"type": "object",
		"required": ["model_id"],
		"properties": {
			"model_id":          {"type": "string", "minLength": 1},
			"region":            {"type": "string"},
			"access_key_id":     {"type": "string"},
			"secret_access_key": {"type": "string"},
			"max_tokens":        {"type": "integer", "minimum": 1},
			"temperature":       {"type": "number", "minimum": 0, "maximum": 2}
		},
		"additionalProperties": false
	}`,
}

// ValidateOptions checks a provider options map against the schema for
// its kind. Violations are unrecoverable configuration errors.
func ValidateOptions(kind domain.Kind, opts map[string]any) error {
	schema, ok := optionSchemas[kind]
	if !ok {
		return fmt.Errorf("%w: unknown provider kind %q", domain.ErrConfiguration, kind)
	}

	if opts == nil {
		opts = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(opts),
	)
	if err != nil {
		return fmt.Errorf("%w: validating %s options: %v", domain.ErrConfiguration, kind, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: invalid %s options: %s",
			domain.ErrConfiguration, kind, strings.Join(msgs, "; "))
	}

	return nil
}
