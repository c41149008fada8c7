package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/turma/internal/adapters/bridge"
	"github.com/alekspetrov/turma/internal/chat"
	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/genai"
	"github.com/alekspetrov/turma/internal/health"
	"github.com/alekspetrov/turma/internal/intent"
	"github.com/alekspetrov/turma/internal/logging"
	"github.com/alekspetrov/turma/internal/pending"
	"github.com/alekspetrov/turma/internal/store"
)

// Config represents the main configuration
type Config struct {
	Version string              `yaml:"version"`
	Bot     *BotConfig          `yaml:"bot"`
	Bridge  *bridge.Config      `yaml:"bridge"`
	Store   *store.Config       `yaml:"store"`
	Dedup   *intent.DedupConfig `yaml:"dedup"`
	Pending *pending.Config     `yaml:"pending"`
	Games   *games.Config       `yaml:"games"`
	AI      *genai.Config       `yaml:"ai"`
	Chat    *chat.Config        `yaml:"chat"`
	Health  *health.Config      `yaml:"health"`
	Logging *logging.Config     `yaml:"logging"`
}

// BotConfig holds the identity and routing settings of the bot.
type BotConfig struct {
	Name       string        `yaml:"name"`
	SelfID     string        `yaml:"self_id"` // platform ID of the bot account, used for mention/reply detection
	Prefix     string        `yaml:"prefix"`
	OwnerIDs   []string      `yaml:"owner_ids"` // may run admin commands anywhere
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Bot: &BotConfig{
			Name:       "Turma",
			Prefix:     "!",
			StaleAfter: 3 * time.Minute,
		},
		Bridge:  bridge.DefaultConfig(),
		Store:   store.DefaultConfig(),
		Dedup:   intent.DefaultDedupConfig(),
		Pending: pending.DefaultConfig(),
		Games:   games.DefaultConfig(),
		AI:      genai.DefaultConfig(),
		Chat:    chat.DefaultConfig(),
		Health:  health.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Store != nil {
		config.Store.Path = expandPath(config.Store.Path)
	}
	if config.Logging != nil && config.Logging.Output != "" {
		config.Logging.Output = expandPath(config.Logging.Output)
	}

	return config, nil
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".turma", "config.yaml")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bot == nil {
		return fmt.Errorf("bot configuration is required")
	}
	if strings.TrimSpace(c.Bot.Prefix) == "" {
		return fmt.Errorf("bot.prefix must not be empty")
	}
	if c.Bot.StaleAfter <= 0 {
		return fmt.Errorf("bot.stale_after must be positive")
	}

	if c.Dedup != nil {
		switch c.Dedup.Backend {
		case "", "memory":
		case "redis":
			if c.Dedup.RedisURL == "" {
				return fmt.Errorf("dedup.redis_url is required when dedup.backend is redis")
			}
		default:
			return fmt.Errorf("invalid dedup.backend %q (want memory or redis)", c.Dedup.Backend)
		}
	}

	if c.Pending != nil && c.Pending.TTL <= 0 {
		return fmt.Errorf("pending.ttl must be positive")
	}

	if c.Store != nil {
		if err := c.Store.Validate(); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if c.AI != nil {
		if err := c.AI.Validate(); err != nil {
			return fmt.Errorf("ai: %w", err)
		}
	}
	if c.Bridge == nil {
		return fmt.Errorf("bridge configuration is required")
	}
	if err := c.Bridge.Validate(); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}
