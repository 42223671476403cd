package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level    string            `koanf:"level"`
	Format   string            `koanf:"format"`
	Caller   bool              `koanf:"caller"`
	Sampling bool              `koanf:"sampling"`
	Fields   map[string]string `koanf:"fields"`

	// Output defaults to stderr so stdout stays free for command output.
	Output zapcore.WriteSyncer `koanf:"-"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Caller: true,
		Fields: map[string]string{
			"service": "ottcluster",
		},
		Output: zapcore.Lock(os.Stderr),
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if _, err := LevelFromString(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
