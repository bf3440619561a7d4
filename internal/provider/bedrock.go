package provider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"tabletalk/internal/domain"
)

// Bedrock generates answers through AWS Bedrock using the Converse API,
// which normalizes request and usage shapes across model families.
type Bedrock struct {
	name        string
	modelID     string
	region      string
	maxTokens   int
	temperature float64

	client      *bedrockruntime.Client
	initialized atomic.Bool
}

// NewBedrock creates an uninitialized Bedrock provider with the given
// registration name.
func NewBedrock(name string) *Bedrock {
	return &Bedrock{name: name}
}

// Initialize loads AWS configuration and constructs the runtime client.
// A missing model ID is unrecoverable; static credentials are optional
// and the default credential chain applies when absent.
func (p *Bedrock) Initialize(opts map[string]any) error {
	p.modelID = optString(opts, "model_id", "")
	if p.modelID == "" {
		return fmt.Errorf("%w: bedrock model_id is required", domain.ErrConfiguration)
	}

	p.region = optString(opts, "region", "us-east-1")
	p.maxTokens = optInt(opts, "max_tokens", 512)
	p.temperature = optFloat(opts, "temperature", 0.1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.region),
	}
	accessKey := optString(opts, "access_key_id", "")
	secretKey := optString(opts, "secret_access_key", "")
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	p.client = bedrockruntime.NewFromConfig(awsCfg)
	p.initialized.Store(true)
	return nil
}

// Generate produces an answer with the configured Bedrock model.
func (p *Bedrock) Generate(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	if !p.initialized.Load() {
		return nil, domain.ErrNotInitialized
	}

	maxTokens := int32(p.maxTokens)
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	temperature := float32(p.temperature)
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.modelID),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Query},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(temperature),
		},
	}
	if req.Context != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.Context},
		}
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock generation failed: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock returned unexpected output type %T", out.Output)
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	content := sb.String()
	if content == "" {
		return nil, fmt.Errorf("bedrock returned an empty completion")
	}

	var tokens int64
	if out.Usage != nil {
		tokens = int64(aws.ToInt32(out.Usage.TotalTokens))
	}

	return &domain.QueryResponse{
		Content:    content,
		ModelName:  p.name,
		TokensUsed: tokens,
		Success:    true,
		Metadata:   map[string]any{"provider": string(domain.KindBedrock), "model": p.modelID},
	}, nil
}

// IsAvailable reports readiness.
func (p *Bedrock) IsAvailable() bool {
	return p.initialized.Load()
}

// Info returns static provider metadata.
func (p *Bedrock) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:          p.name,
		Kind:          domain.KindBedrock,
		Model:         p.modelID,
		ContextLength: 200000,
		Capabilities:  []string{"text_generation", "chat", "analysis"},
	}
}

// Cleanup drops the runtime client. Idempotent.
func (p *Bedrock) Cleanup() {
	p.initialized.Store(false)
	p.client = nil
}
