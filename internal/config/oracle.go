package config

// OracleConfig configures a text-generation backend.
type OracleConfig struct {
	Provider string `yaml:"provider"` // gemini, azure, pepgenx, static
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// Azure OpenAI
	APIVersion string `yaml:"api_version"`
	Deployment string `yaml:"deployment"`

	// PepGenX (OAuth2 client credentials)
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TeamID       string `yaml:"team_id"`
	ProjectID    string `yaml:"project_id"`

	// Requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// Static provider: files holding canned responses, served in order.
	Responses []string `yaml:"responses"`
}

// IsZero reports whether no provider is configured.
func (c OracleConfig) IsZero() bool {
	return c.Provider == ""
}
