// Package builtin provides the chat commands shipped with turma.
package builtin

import (
	"context"

	"github.com/alekspetrov/turma/internal/commands"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
)

// GameService is the game engine surface used by the game commands.
type GameService interface {
	Activate(ctx context.Context, groupID string, v games.Variant, activatorID string) (*games.Game, error)
	ActiveGame(ctx context.Context, groupID string, v games.Variant) (*games.Game, error)
	Reveal(ctx context.Context, groupID string, v games.Variant) (int, error)
	Cancel(ctx context.Context, groupID string, v games.Variant) (int, error)
	Finalize(ctx context.Context, groupID string, v games.Variant) (*games.Summary, error)
	Ranking(ctx context.Context, groupID string, v games.Variant, kind games.ReactionKind) ([]games.RankEntry, error)
	MutualMatches(ctx context.Context, groupID string) ([]games.Match, error)
}

// Asker answers a free-form question with the AI backend.
type Asker interface {
	Ask(ctx context.Context, ev *comms.InboundEvent, question string) error
}

// CommandToggler persists per-group command disablement.
type CommandToggler interface {
	SetCommandDisabled(ctx context.Context, groupID, command string, disabled bool) error
	DisabledCommands(ctx context.Context, groupID string) ([]string, error)
}

// UsageReporter reads command usage counters.
type UsageReporter interface {
	TopUsage(ctx context.Context, chatID string, limit int) ([]commands.UsageStat, error)
}

// Deps are the collaborators bound into the builtin commands. Commands
// whose collaborator is nil are not registered.
type Deps struct {
	BotName string
	Games   GameService
	Asker   Asker
	Toggler CommandToggler
	Usage   UsageReporter
}

// Register adds every builtin command to r.
func Register(r *commands.Registry, deps Deps) error {
	cmds := []*commands.Command{helpCommand(r, deps.BotName), pingCommand()}
	if deps.Games != nil {
		cmds = append(cmds, gameCommands(deps.Games)...)
	}
	if deps.Toggler != nil {
		cmds = append(cmds, toggleCommands(r, deps.Toggler)...)
	}
	if deps.Usage != nil {
		cmds = append(cmds, usageCommand(deps.Usage))
	}
	if deps.Asker != nil {
		cmds = append(cmds, askCommand(deps.Asker))
	}

	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}
