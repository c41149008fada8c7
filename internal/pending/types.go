// Package pending resolves which group an anonymous private submission
// belongs to when more than one group could receive it.
package pending

import (
	"time"

	"github.com/alekspetrov/turma/internal/games"
)

// Step is the state of a pending interaction.
type Step string

const (
	// StepConfirm waits for a yes/no on the single candidate group.
	StepConfirm Step = "confirm"
	// StepChoose waits for a number selecting one of the options.
	StepChoose Step = "choose"
)

// Option is one candidate group for a submission.
type Option struct {
	GroupID   string
	GroupName string
	// IsCreatorGroup is false when the option comes from the last-resort
	// widening to every active game.
	IsCreatorGroup bool
}

// Interaction is the placement state of one user. There is at most one per
// user; a new submission replaces it.
type Interaction struct {
	UserID    string
	ChatID    string // private chat used for prompts
	Variant   games.Variant
	Options   []Option
	Payload   games.Payload
	Step      Step
	CreatedAt time.Time
}

func (i *Interaction) clone() *Interaction {
	c := *i
	c.Options = append([]Option(nil), i.Options...)
	return &c
}

// Config holds pending interaction settings.
type Config struct {
	TTL             time.Duration `yaml:"ttl"`
	SweepSchedule   string        `yaml:"sweep_schedule"`   // cron spec
	MetadataTimeout time.Duration `yaml:"metadata_timeout"` // per group metadata lookup
}

// DefaultConfig returns the pending interaction defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL:             5 * time.Minute,
		SweepSchedule:   "@every 1m",
		MetadataTimeout: 5 * time.Second,
	}
}
