// Package config holds the admission budgets for each endpoint class.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lifeline/internal/ratelimit/models"
)

// Config maps endpoint classes to their limits. Classes without an entry are
// denied by the limiter.
type Config struct {
	Classes map[models.EndpointClass]models.Limit `yaml:"classes"`
}

// DefaultConfig returns the deployment-wide class table.
func DefaultConfig() *Config {
	return &Config{
		Classes: map[models.EndpointClass]models.Limit{
			models.ClassEmergency: {MaxRequests: 10, Window: 60 * time.Second},
			models.ClassStandard:  {MaxRequests: 60, Window: 60 * time.Second},
			models.ClassAuth:      {MaxRequests: 5, Window: 300 * time.Second},
			models.ClassReadOnly:  {MaxRequests: 200, Window: 60 * time.Second},
		},
	}
}

// Get returns the limit configured for class.
func (c *Config) Get(class models.EndpointClass) (models.Limit, bool) {
	if c == nil {
		return models.Limit{}, false
	}
	l, ok := c.Classes[class]
	return l, ok
}

// Validate rejects unknown classes and non-positive budgets.
func (c *Config) Validate() error {
	for class, l := range c.Classes {
		if !class.IsValid() {
			return fmt.Errorf("unknown endpoint class %q", class)
		}
		if l.MaxRequests <= 0 {
			return fmt.Errorf("class %s: max_requests must be positive", class)
		}
		if l.Window <= 0 {
			return fmt.Errorf("class %s: window must be positive", class)
		}
	}
	return nil
}

// Load returns the default table with any classes from the YAML file at path
// layered on top. An empty path returns the defaults.
//
//	classes:
//	  emergency:
//	    max_requests: 5
//	    window: 30s
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit config: %w", err)
	}
	var override Config
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse rate limit config: %w", err)
	}
	for class, l := range override.Classes {
		cfg.Classes[class] = l
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	return cfg, nil
}
