package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// PepGenXConfig configures the internal PepGenX gateway.
type PepGenXConfig struct {
	TokenURL     string
	ModelURL     string
	ClientID     string
	ClientSecret string
	APIKey       string
	TeamID       string
	ProjectID    string
	Timeout      time.Duration

	// HTTPClient is the transport used for both token and model calls.
	HTTPClient *http.Client
}

// PepGenXClient posts prompts to the PepGenX generate-response endpoint,
// authenticating with an OAuth2 client-credentials bearer token.
type PepGenXClient struct {
	modelURL   string
	apiKey     string
	teamID     string
	projectID  string
	httpClient *http.Client
}

type pepgenxRequest struct {
	Prompt string `json:"prompt"`
}

type pepgenxResponse struct {
	Response string `json:"response"`
}

// NewPepGenXClient creates a PepGenX-backed oracle.
func NewPepGenXClient(cfg PepGenXConfig) (*PepGenXClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, Fatal("PepGenX client credentials are required", nil)
	}
	if cfg.TokenURL == "" || cfg.ModelURL == "" {
		return nil, Fatal("PepGenX token and model URLs are required", nil)
	}

	base := cfg.HTTPClient
	if base == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &PepGenXClient{
		modelURL:   cfg.ModelURL,
		apiKey:     cfg.APIKey,
		teamID:     cfg.TeamID,
		projectID:  cfg.ProjectID,
		httpClient: cc.Client(tokenCtx),
	}, nil
}

func (c *PepGenXClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(pepgenxRequest{Prompt: buildGatewayPrompt(systemPrompt, userPrompt)})
	if err != nil {
		return "", Fatal("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(body))
	if err != nil {
		return "", Fatal("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.teamID != "" {
		req.Header.Set("team_id", c.teamID)
	}
	if c.projectID != "" {
		req.Header.Set("project_id", c.projectID)
	}
	if c.apiKey != "" {
		req.Header.Set("x-pepgenx-apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			if re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 && re.Response.StatusCode != 429 {
				return "", Fatal("PepGenX token request rejected", err)
			}
			return "", Classify(&StatusError{Code: re.Response.StatusCode, Body: string(re.Body)})
		}
		return "", Classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Transient("failed to read PepGenX response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", Classify(&StatusError{Code: resp.StatusCode, Body: string(data)})
	}

	var out pepgenxResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", Transient("failed to decode PepGenX response", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", Transient("PepGenX returned an empty response", nil)
	}
	return out.Response, nil
}

// buildGatewayPrompt flattens role messages for gateways that accept one
// prompt string.
func buildGatewayPrompt(systemPrompt, userPrompt string) string {
	if systemPrompt == "" {
		return userPrompt
	}
	return fmt.Sprintf("[System]: %s\n[User]: %s\n", systemPrompt, userPrompt)
}
