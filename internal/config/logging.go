package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string          `yaml:"level"`       // debug, info, warn, error
	Format      string          `yaml:"format"`      // json, console
	File        string          `yaml:"file"`        // empty = stderr
	Development bool            `yaml:"development"` // zap development config
	Categories  map[string]bool `yaml:"categories"`  // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}
