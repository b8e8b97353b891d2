package oracle

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const defaultAzureAPIVersion = "2024-06-01"

// AzureConfig configures an Azure OpenAI deployment.
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Deployment string
}

// AzureClient generates text with an Azure OpenAI chat deployment.
type AzureClient struct {
	llm *openai.LLM
}

// NewAzureClient creates an Azure OpenAI-backed oracle.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.APIKey == "" {
		return nil, Fatal("Azure OpenAI API key is required", nil)
	}
	if cfg.Endpoint == "" {
		return nil, Fatal("Azure OpenAI endpoint is required", nil)
	}
	if cfg.Deployment == "" {
		return nil, Fatal("Azure OpenAI deployment is required", nil)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAzureAPIVersion
	}

	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.Endpoint),
		openai.WithAPIVersion(cfg.APIVersion),
		openai.WithModel(cfg.Deployment),
	)
	if err != nil {
		return nil, Fatal("failed to create Azure OpenAI client", err)
	}
	return &AzureClient{llm: llm}, nil
}

func (c *AzureClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, userPrompt))

	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", Transient("Azure OpenAI returned no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", Transient("Azure OpenAI returned an empty response", nil)
	}
	return text, nil
}
