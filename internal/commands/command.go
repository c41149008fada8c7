// Package commands resolves and runs the prefixed chat commands.
package commands

import (
	"context"
	"strings"

	"github.com/alekspetrov/turma/internal/comms"
)

// Scope restricts where a command may run.
type Scope string

const (
	ScopeAny     Scope = "any"
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

// Category groups commands in the help listing.
type Category string

const (
	CategoryGeneral    Category = "Geral"
	CategoryPhotos     Category = "Jogo das fotos"
	CategoryConfession Category = "Confissões"
	CategoryAI         Category = "IA"
	CategoryAdmin      Category = "Administração"
)

// Command is one chat command.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string // arguments, without the command name
	Description string
	Category    Category
	Scope       Scope
	AdminOnly   bool
	// AlwaysOn commands ignore group disablement.
	AlwaysOn bool
	Run      func(ctx context.Context, inv *Invocation) error
}

// Invocation is one execution of a command.
type Invocation struct {
	Event   *comms.InboundEvent
	Name    string // canonical name
	Args    []string
	Prefix  string
	Command *Command

	d *Dispatcher
}

// RawArgs returns the arguments joined by single spaces.
func (inv *Invocation) RawArgs() string {
	return strings.Join(inv.Args, " ")
}

// Arg returns the i-th argument or "".
func (inv *Invocation) Arg(i int) string {
	if i < len(inv.Args) {
		return inv.Args[i]
	}
	return ""
}

// Reply sends text to the chat the command came from.
func (inv *Invocation) Reply(ctx context.Context, text string) error {
	return comms.Reply(ctx, inv.d.transport, inv.Event.ChatID, text)
}

// Send sends msg to the chat the command came from.
func (inv *Invocation) Send(ctx context.Context, msg comms.OutboundMessage) error {
	_, err := inv.d.transport.SendMessage(ctx, inv.Event.ChatID, msg)
	return err
}

// IsAdmin reports whether the sender administers the group, or is a bot
// owner.
func (inv *Invocation) IsAdmin(ctx context.Context) bool {
	return inv.d.isAdmin(ctx, inv.Event)
}

// Dispatcher returns the dispatcher running the invocation.
func (inv *Invocation) Dispatcher() *Dispatcher {
	return inv.d
}

// UsageLine renders the usage of cmd with prefix.
func UsageLine(prefix string, cmd *Command) string {
	if cmd.Usage == "" {
		return prefix + cmd.Name
	}
	return prefix + cmd.Name + " " + cmd.Usage
}

// UsageStat is the execution count of one command.
type UsageStat struct {
	Command string
	Count   int
}
