package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents a jsbridge.yaml configuration file.
// All values are optional and act as defaults for jsbridge run flags.
// CLI flags always override config values.
type Config struct {
	Page          string            `yaml:"page"`
	Timeout       Duration          `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
	UserAgent     string            `yaml:"user_agent"`
	ScriptTimeout Duration          `yaml:"script_timeout"`
	CallbackTTL   Duration          `yaml:"callback_ttl"`
	Transcript    string            `yaml:"transcript"`
	Calls         []CallConfig      `yaml:"calls"`
	Storage       StorageConfig     `yaml:"storage"`
	Adapter       AdapterConfig     `yaml:"adapter"`
}

// CallConfig is a host->page call issued after the page is ready.
type CallConfig struct {
	Handler string `yaml:"handler"`
	// Data is omitted from the call when the key is absent.
	Data *string `yaml:"data"`
	// Notify sends the call without a response callback.
	Notify bool `yaml:"notify"`
}

// StorageConfig holds archive defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values. Empty values are always valid.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for adapter.type %q", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	for i, call := range c.Calls {
		if strings.TrimSpace(call.Handler) == "" {
			return fmt.Errorf("calls[%d].handler is required", i)
		}
	}
	return nil
}
