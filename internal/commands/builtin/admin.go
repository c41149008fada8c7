package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/alekspetrov/turma/internal/commands"
	"github.com/alekspetrov/turma/internal/comms"
)

func toggleCommands(r *commands.Registry, t CommandToggler) []*commands.Command {
	toggle := func(disable bool) func(ctx context.Context, inv *commands.Invocation) error {
		return func(ctx context.Context, inv *commands.Invocation) error {
			name := strings.TrimPrefix(inv.Arg(0), inv.Prefix)
			if name == "" {
				return listDisabled(ctx, inv, t)
			}
			cmd, ok := r.Lookup(name)
			if !ok {
				return comms.SoftError(fmt.Sprintf("Não conheço o comando %s.", name))
			}
			if cmd.AlwaysOn {
				return comms.SoftError(fmt.Sprintf("O comando %s%s não pode ser desativado.", inv.Prefix, cmd.Name))
			}
			if err := t.SetCommandDisabled(ctx, inv.Event.GroupID, cmd.Name, disable); err != nil {
				return fmt.Errorf("toggle %s: %w", cmd.Name, err)
			}
			state := "ativado"
			if disable {
				state = "desativado"
			}
			return inv.Reply(ctx, fmt.Sprintf("✅ Comando *%s%s* %s neste grupo.", inv.Prefix, cmd.Name, state))
		}
	}

	return []*commands.Command{
		{
			Name:        "desativar",
			Usage:       "<comando>",
			Description: "Desativa um comando neste grupo",
			Category:    commands.CategoryAdmin,
			Scope:       commands.ScopeGroup,
			AdminOnly:   true,
			AlwaysOn:    true,
			Run:         toggle(true),
		},
		{
			Name:        "ativar",
			Usage:       "<comando>",
			Description: "Reativa um comando neste grupo",
			Category:    commands.CategoryAdmin,
			Scope:       commands.ScopeGroup,
			AdminOnly:   true,
			AlwaysOn:    true,
			Run:         toggle(false),
		},
	}
}

func listDisabled(ctx context.Context, inv *commands.Invocation, t CommandToggler) error {
	names, err := t.DisabledCommands(ctx, inv.Event.GroupID)
	if err != nil {
		return fmt.Errorf("list disabled commands: %w", err)
	}
	if len(names) == 0 {
		return inv.Reply(ctx, "Nenhum comando desativado neste grupo.")
	}
	for i, n := range names {
		names[i] = inv.Prefix + n
	}
	return inv.Reply(ctx, "🚫 Desativados: "+strings.Join(names, ", "))
}

func usageCommand(u UsageReporter) *commands.Command {
	return &commands.Command{
		Name:        "uso",
		Description: "Comandos mais usados neste chat",
		Category:    commands.CategoryAdmin,
		Run: func(ctx context.Context, inv *commands.Invocation) error {
			stats, err := u.TopUsage(ctx, inv.Event.ChatID, 10)
			if err != nil {
				return fmt.Errorf("read usage: %w", err)
			}
			if len(stats) == 0 {
				return inv.Reply(ctx, "Ninguém usou nenhum comando aqui ainda.")
			}
			var b strings.Builder
			b.WriteString("📊 *Comandos mais usados*\n")
			for i, s := range stats {
				fmt.Fprintf(&b, "\n%d. %s%s — %d", i+1, inv.Prefix, s.Command, s.Count)
			}
			return inv.Reply(ctx, b.String())
		},
	}
}
