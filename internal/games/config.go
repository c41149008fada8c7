package games

import "time"

// Config holds game engine settings.
type Config struct {
	RevealDelay      time.Duration `yaml:"reveal_delay"`       // pause between revealed items
	MaxConfessionLen int           `yaml:"max_confession_len"` // in runes
	MediaMaxDim      uint          `yaml:"media_max_dim"`      // longest side of stored photos, 0 keeps originals
	MaxCaptionLen    int           `yaml:"max_caption_len"`    // revealed photo captions, in runes; 0 keeps them whole
}

// DefaultConfig returns the game defaults.
func DefaultConfig() *Config {
	return &Config{
		RevealDelay:      3 * time.Second,
		MaxConfessionLen: 1000,
		MediaMaxDim:      1280,
		MaxCaptionLen:    200,
	}
}
