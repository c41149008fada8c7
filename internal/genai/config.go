package genai

import (
	"fmt"
	"time"
)

// Config holds AI dispatch settings.
type Config struct {
	Credentials     []Credential `yaml:"credentials"`
	Models          []string     `yaml:"models"` // in preference order
	BaseURL         string       `yaml:"base_url"`
	Temperature     float64      `yaml:"temperature"`
	MaxOutputTokens int          `yaml:"max_output_tokens"`

	MaxRounds      int           `yaml:"max_rounds"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	RoundBackoff   time.Duration `yaml:"round_backoff"`

	CredentialCooldown time.Duration `yaml:"credential_cooldown"`
	ModelCooldown      time.Duration `yaml:"model_cooldown"`
	CredentialStale    time.Duration `yaml:"credential_stale"`
	ModelStale         time.Duration `yaml:"model_stale"`
	EarlyClear         time.Duration `yaml:"early_clear"`    // after timeouts and connection errors
	SweepSchedule      string        `yaml:"sweep_schedule"` // cron spec
}

// DefaultConfig returns the AI defaults. Credentials must be configured.
func DefaultConfig() *Config {
	return &Config{
		Models:             []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"},
		BaseURL:            "https://generativelanguage.googleapis.com/v1beta",
		Temperature:        0.9,
		MaxOutputTokens:    1024,
		MaxRounds:          2,
		AttemptTimeout:     30 * time.Second,
		RoundBackoff:       time.Second,
		CredentialCooldown: 60 * time.Second,
		ModelCooldown:      30 * time.Second,
		CredentialStale:    2 * time.Minute,
		ModelStale:         time.Minute,
		EarlyClear:         5 * time.Second,
		SweepSchedule:      "@every 5m",
	}
}

// Enabled reports whether any credential is configured.
func (c *Config) Enabled() bool {
	return len(c.Credentials) > 0
}

// Validate checks the AI settings. No credentials means AI is disabled.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	seen := make(map[string]bool)
	for i, cred := range c.Credentials {
		if cred.Key == "" {
			return fmt.Errorf("credentials[%d]: key is empty", i)
		}
		if cred.Label == "" {
			c.Credentials[i].Label = fmt.Sprintf("key-%d", i+1)
		}
		if seen[c.Credentials[i].Label] {
			return fmt.Errorf("credentials[%d]: duplicate label %q", i, c.Credentials[i].Label)
		}
		seen[c.Credentials[i].Label] = true
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be positive")
	}
	if c.ModelCooldown > c.CredentialCooldown {
		return fmt.Errorf("model_cooldown must not exceed credential_cooldown")
	}
	return nil
}
