package chat

import "time"

// Config holds the text-response settings.
type Config struct {
	Persona       string        `yaml:"persona"` // system prompt
	HistorySize   int           `yaml:"history_size"`
	HistoryTTL    time.Duration `yaml:"history_ttl"`
	MaxReplyLen   int           `yaml:"max_reply_len"` // platform message limit, bytes
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	Functions     []string      `yaml:"functions"` // commands the model may call
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// DefaultConfig returns the text-response defaults.
func DefaultConfig() *Config {
	return &Config{
		Persona: "Você é a Turma, o bot de um grupo de amigos. Responda em português, " +
			"de forma curta e bem-humorada. Quando alguém pedir algo que um comando faz, chame a função.",
		HistorySize:   20,
		HistoryTTL:    30 * time.Minute,
		MaxReplyLen:   4000,
		StoreTimeout:  3 * time.Second,
		Functions:     []string{"ajuda", "ping", "rankingfotos", "rankingconfissoes"},
		SweepSchedule: "@every 5m",
	}
}
