package config

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	BodyLimit       string `yaml:"body_limit"`
}

// TemplatesConfig configures prompt template lookup.
type TemplatesConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SinkConfig configures where validated artifacts are written.
type SinkConfig struct {
	Kind      string `yaml:"kind"` // none, fs, s3
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// BatchConfig configures concurrent task execution.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}
