package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sttmforge configuration.
type Config struct {
	Name string `yaml:"name"`

	// Generation oracle
	Oracle OracleConfig `yaml:"oracle"`

	// Judge oracle; falls back to Oracle when no provider is set.
	Judge OracleConfig `yaml:"judge"`

	Policies  PoliciesConfig  `yaml:"policies"`
	Server    ServerConfig    `yaml:"server"`
	Templates TemplatesConfig `yaml:"templates"`
	Store     StoreConfig     `yaml:"store"`
	Sink      SinkConfig      `yaml:"sink"`
	Batch     BatchConfig     `yaml:"batch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "sttmforge",

		Oracle: OracleConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			Timeout:   "120s",
			RateLimit: 2,
			Burst:     2,
		},

		Policies: PoliciesConfig{
			Mapping: MappingPolicyConfig{
				MaxAttempts:                 3,
				StrictCoverage:              true,
				UnresolvedReferenceSeverity: "strict",
				JudgeFailOpen:               false,
				JudgeComplexCount:           5,
				JudgeComplexFraction:        0.3,
			},
			Silver: CodePolicyConfig{MaxAttempts: 5, MinLines: 5},
			Gold:   CodePolicyConfig{MaxAttempts: 5, MinLines: 5},
		},

		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
			BodyLimit:       "10M",
		},

		Templates: TemplatesConfig{
			Dir: "templates",
		},

		Store: StoreConfig{
			Enabled: false,
			Path:    "data/sttmforge.db",
		},

		Sink: SinkConfig{
			Kind: "none",
			Dir:  "artifacts",
		},

		Batch: BatchConfig{
			Concurrency: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults still honour the environment
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.Oracle.Provider == "" || c.Oracle.Provider == "gemini" {
			c.Oracle.Provider = "gemini"
			c.Oracle.APIKey = key
		}
	}

	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		c.Oracle.Provider = "azure"
		c.Oracle.APIKey = key
	}
	if endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		c.Oracle.BaseURL = endpoint
	}

	// PepGenX wins when its client credentials are present
	if id := os.Getenv("PEPGENX_CLIENT_ID"); id != "" {
		c.Oracle.Provider = "pepgenx"
		c.Oracle.ClientID = id
	}
	if secret := os.Getenv("PEPGENX_CLIENT_SECRET"); secret != "" {
		c.Oracle.ClientSecret = secret
	}
	if key := os.Getenv("PEPGENX_API_KEY"); key != "" && c.Oracle.Provider == "pepgenx" {
		c.Oracle.APIKey = key
	}
	if url := os.Getenv("PEPGENX_TOKEN_URL"); url != "" {
		c.Oracle.TokenURL = url
	}
	if url := os.Getenv("PEPGENX_MODEL_URL"); url != "" {
		c.Oracle.BaseURL = url
	}

	if path := os.Getenv("STTMFORGE_DB"); path != "" {
		c.Store.Path = path
		c.Store.Enabled = true
	}
	if dir := os.Getenv("STTMFORGE_TEMPLATES"); dir != "" {
		c.Templates.Dir = dir
	}
	if addr := os.Getenv("STTMFORGE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// JudgeOracle returns the judge backend config, defaulting to the generator.
func (c *Config) JudgeOracle() OracleConfig {
	if c.Judge.IsZero() {
		return c.Oracle
	}
	return c.Judge
}

// GetOracleTimeout returns the oracle timeout as a duration.
func (c *Config) GetOracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetShutdownTimeout returns the server shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ValidProviders lists all supported oracle providers.
var ValidProviders = []string{"gemini", "azure", "pepgenx", "static"}

// ValidSinks lists all supported artifact sinks.
var ValidSinks = []string{"none", "fs", "s3"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validateOracle("oracle", c.Oracle); err != nil {
		return err
	}
	if !c.Judge.IsZero() {
		if err := validateOracle("judge", c.Judge); err != nil {
			return err
		}
	}

	switch c.Policies.Mapping.UnresolvedReferenceSeverity {
	case "strict", "non_strict":
	default:
		return fmt.Errorf("invalid unresolved_reference_severity: %q (valid: strict, non_strict)",
			c.Policies.Mapping.UnresolvedReferenceSeverity)
	}
	if f := c.Policies.Mapping.JudgeComplexFraction; f < 0 || f > 1 {
		return fmt.Errorf("judge_complex_fraction must be within [0, 1], got %v", f)
	}

	if !contains(ValidSinks, c.Sink.Kind) {
		return fmt.Errorf("invalid sink kind: %s (valid: %v)", c.Sink.Kind, ValidSinks)
	}
	if c.Sink.Kind == "s3" && c.Sink.Bucket == "" {
		return fmt.Errorf("sink.bucket is required for the s3 sink")
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}

	return nil
}

func validateOracle(section string, o OracleConfig) error {
	if !contains(ValidProviders, o.Provider) {
		return fmt.Errorf("invalid %s provider: %s (valid: %v)", section, o.Provider, ValidProviders)
	}
	switch o.Provider {
	case "gemini", "azure":
		if o.APIKey == "" {
			return fmt.Errorf("%s API key not configured (set GEMINI_API_KEY or AZURE_OPENAI_API_KEY)", section)
		}
		if o.Provider == "azure" && o.BaseURL == "" {
			return fmt.Errorf("%s base_url not configured (set AZURE_OPENAI_ENDPOINT)", section)
		}
	case "pepgenx":
		if o.ClientID == "" || o.ClientSecret == "" || o.TokenURL == "" || o.BaseURL == "" {
			return fmt.Errorf("%s pepgenx requires client_id, client_secret, token_url and base_url", section)
		}
	case "static":
		if len(o.Responses) == 0 {
			return fmt.Errorf("%s static provider requires at least one response file", section)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
