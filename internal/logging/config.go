package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Caller bool              `koanf:"caller"`
	Fields map[string]string `koanf:"fields"`

	// Output is where entries go; nil means stderr so stdout stays free for data.
	Output io.Writer `koanf:"-"`
}

// NewDefaultConfig returns config suited to batch runs.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "console",
		Caller: false,
		Fields: map[string]string{
			"service": "tokcompress",
		},
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
	for k := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
	}
	return nil
}

func (c *Config) writer() zapcore.WriteSyncer {
	if c.Output == nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(c.Output)
}
