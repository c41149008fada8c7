package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/alekspetrov/turma/internal/commands"
	"github.com/alekspetrov/turma/internal/comms"
)

var categoryOrder = []commands.Category{
	commands.CategoryGeneral,
	commands.CategoryPhotos,
	commands.CategoryConfession,
	commands.CategoryAI,
	commands.CategoryAdmin,
}

func helpCommand(r *commands.Registry, botName string) *commands.Command {
	if botName == "" {
		botName = "Turma"
	}
	return &commands.Command{
		Name:        "ajuda",
		Aliases:     []string{"help", "comandos"},
		Usage:       "[comando]",
		Description: "Mostra os comandos ou como usar um deles",
		Category:    commands.CategoryGeneral,
		Run: func(ctx context.Context, inv *commands.Invocation) error {
			if name := inv.Arg(0); name != "" {
				cmd, ok := r.Lookup(strings.TrimPrefix(name, inv.Prefix))
				if !ok {
					return comms.SoftError(fmt.Sprintf("Não conheço o comando %s.", name))
				}
				return inv.Reply(ctx, describe(inv.Prefix, cmd))
			}
			return inv.Reply(ctx, listing(r, inv.Prefix, botName))
		},
	}
}

func describe(prefix string, cmd *commands.Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n%s", commands.UsageLine(prefix, cmd), cmd.Description)
	if len(cmd.Aliases) > 0 {
		aliases := make([]string, len(cmd.Aliases))
		for i, a := range cmd.Aliases {
			aliases[i] = prefix + a
		}
		fmt.Fprintf(&b, "\nTambém: %s", strings.Join(aliases, ", "))
	}
	return b.String()
}

func listing(r *commands.Registry, prefix, botName string) string {
	byCategory := make(map[commands.Category][]*commands.Command)
	for _, cmd := range r.Commands() {
		byCategory[cmd.Category] = append(byCategory[cmd.Category], cmd)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 *%s*\n", botName)
	for _, cat := range categoryOrder {
		cmds := byCategory[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n*%s*\n", cat)
		for _, cmd := range cmds {
			fmt.Fprintf(&b, "%s — %s\n", commands.UsageLine(prefix, cmd), cmd.Description)
		}
	}
	fmt.Fprintf(&b, "\nDetalhes: %sajuda <comando>", prefix)
	return b.String()
}

func pingCommand() *commands.Command {
	return &commands.Command{
		Name:        "ping",
		Description: "Confere se estou acordado",
		Category:    commands.CategoryGeneral,
		Run: func(ctx context.Context, inv *commands.Invocation) error {
			return inv.Reply(ctx, "🏓 Pong!")
		},
	}
}

func askCommand(a Asker) *commands.Command {
	return &commands.Command{
		Name:        "ia",
		Aliases:     []string{"gpt"},
		Usage:       "<pergunta>",
		Description: "Pergunta qualquer coisa para a IA",
		Category:    commands.CategoryAI,
		Run: func(ctx context.Context, inv *commands.Invocation) error {
			question := strings.TrimSpace(inv.RawArgs())
			if question == "" {
				return comms.SoftError(fmt.Sprintf("Manda a pergunta junto: %sia <pergunta>", inv.Prefix))
			}
			return a.Ask(ctx, inv.Event, question)
		},
	}
}
