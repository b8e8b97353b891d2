package oracle

import (
	"context"
	"fmt"
	"time"

	"sttmforge/internal/config"
	"sttmforge/internal/logging"
)

// NewFromConfig builds the configured backend, wrapped with rate limiting
// and tracing. Configuration problems come back as *FatalError.
func NewFromConfig(ctx context.Context, cfg config.OracleConfig, timeout time.Duration) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case "gemini":
		client, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	case "azure":
		deployment := cfg.Deployment
		if deployment == "" {
			deployment = cfg.Model
		}
		client, err = NewAzureClient(AzureConfig{
			Endpoint:   cfg.BaseURL,
			APIKey:     cfg.APIKey,
			APIVersion: cfg.APIVersion,
			Deployment: deployment,
		})
	case "pepgenx":
		client, err = NewPepGenXClient(PepGenXConfig{
			TokenURL:     cfg.TokenURL,
			ModelURL:     cfg.BaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			APIKey:       cfg.APIKey,
			TeamID:       cfg.TeamID,
			ProjectID:    cfg.ProjectID,
			Timeout:      timeout,
		})
	case "static":
		client, err = NewStaticFromFiles(cfg.Responses)
	default:
		return nil, Fatal(fmt.Sprintf("unsupported oracle provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	logging.Oracle("oracle backend ready: provider=%s model=%s", cfg.Provider, cfg.Model)
	return NewTraced(NewRateLimited(client, cfg.RateLimit, cfg.Burst), cfg.Provider), nil
}
