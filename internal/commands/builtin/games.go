package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/alekspetrov/turma/internal/commands"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/games"
)

// ErrNotActivator rejects game management by regular members.
var ErrNotActivator = comms.SoftError("Só quem começou o jogo ou um admin pode fazer isso.")

type gameNames struct {
	start, reveal, cancel, finish, ranking string
	startAliases, revealAliases            []string
	finishAliases                          []string
	category                               commands.Category
}

var variantNames = map[games.Variant]gameNames{
	games.VariantPhoto: {
		start:         "fotos",
		reveal:        "revelar",
		cancel:        "cancelarfotos",
		finish:        "encerrarfotos",
		ranking:       "rankingfotos",
		startAliases:  []string{"iniciarfotos"},
		revealAliases: []string{"revelarfotos"},
		finishAliases: []string{"finalizarfotos"},
		category:      commands.CategoryPhotos,
	},
	games.VariantConfession: {
		start:        "confissoes",
		reveal:       "revelarconfissoes",
		cancel:       "cancelarconfissoes",
		finish:       "encerrarconfissoes",
		ranking:      "rankingconfissoes",
		startAliases: []string{"iniciarconfissoes"},
		category:     commands.CategoryConfession,
	},
}

func gameCommands(svc GameService) []*commands.Command {
	var out []*commands.Command
	for _, v := range games.Variants {
		out = append(out, variantCommands(svc, v, variantNames[v])...)
	}
	return append(out, matchesCommand(svc))
}

func variantCommands(svc GameService, v games.Variant, n gameNames) []*commands.Command {
	return []*commands.Command{
		{
			Name:        n.start,
			Aliases:     n.startAliases,
			Description: fmt.Sprintf("Começa um jogo de %s", v.Noun()),
			Category:    n.category,
			Scope:       commands.ScopeGroup,
			Run: func(ctx context.Context, inv *commands.Invocation) error {
				if _, err := svc.Activate(ctx, inv.Event.GroupID, v, inv.Event.SenderID); err != nil {
					return err
				}
				return inv.Reply(ctx, startMessage(v, inv.Prefix+n.reveal))
			},
		},
		{
			Name:        n.reveal,
			Aliases:     n.revealAliases,
			Description: fmt.Sprintf("Revela as %s enviadas", v.Noun()),
			Category:    n.category,
			Scope:       commands.ScopeGroup,
			Run: func(ctx context.Context, inv *commands.Invocation) error {
				if err := requireManager(ctx, svc, inv, v); err != nil {
					return err
				}
				count, err := svc.Reveal(ctx, inv.Event.GroupID, v)
				if err != nil {
					return err
				}
				return inv.Reply(ctx, fmt.Sprintf("✅ %d %s revelada(s)! O jogo continua aberto para novos envios.\nRanking: %s%s",
					count, v.Noun(), inv.Prefix, n.ranking))
			},
		},
		{
			Name:        n.cancel,
			Description: fmt.Sprintf("Cancela o jogo de %s e descarta o que não foi revelado", v.Noun()),
			Category:    n.category,
			Scope:       commands.ScopeGroup,
			Run: func(ctx context.Context, inv *commands.Invocation) error {
				if err := requireManager(ctx, svc, inv, v); err != nil {
					return err
				}
				discarded, err := svc.Cancel(ctx, inv.Event.GroupID, v)
				if err != nil {
					return err
				}
				return inv.Reply(ctx, fmt.Sprintf("🛑 Jogo cancelado. %d %s descartada(s).", discarded, v.Noun()))
			},
		},
		{
			Name:        n.finish,
			Aliases:     n.finishAliases,
			Description: fmt.Sprintf("Encerra o jogo de %s", v.Noun()),
			Category:    n.category,
			Scope:       commands.ScopeGroup,
			Run: func(ctx context.Context, inv *commands.Invocation) error {
				if err := requireManager(ctx, svc, inv, v); err != nil {
					return err
				}
				sum, err := svc.Finalize(ctx, inv.Event.GroupID, v)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("🏁 Jogo encerrado! %d %s revelada(s)", sum.Revealed, v.Noun())
				if sum.Discarded > 0 {
					text += fmt.Sprintf(", %d não revelada(s) descartada(s)", sum.Discarded)
				}
				return inv.Reply(ctx, text+".")
			},
		},
		{
			Name:        n.ranking,
			Usage:       "[" + kindNames(v) + "]",
			Description: fmt.Sprintf("Ranking das %s por reação", v.Noun()),
			Category:    n.category,
			Scope:       commands.ScopeGroup,
			Run: func(ctx context.Context, inv *commands.Invocation) error {
				kind := v.PositiveKind()
				if arg := inv.RawArgs(); arg != "" {
					k, ok := v.ParseKind(arg)
					if !ok {
						return comms.SoftError(fmt.Sprintf("Reação desconhecida. Use uma destas: %s", kindNames(v)))
					}
					kind = k
				}
				entries, err := svc.Ranking(ctx, inv.Event.GroupID, v, kind)
				if err != nil {
					return err
				}
				return inv.Reply(ctx, renderRanking(v, kind, entries))
			},
		},
	}
}

func matchesCommand(svc GameService) *commands.Command {
	return &commands.Command{
		Name:        "matches",
		Description: "Quem deu 😍 um pro outro no jogo das fotos",
		Category:    commands.CategoryPhotos,
		Scope:       commands.ScopeGroup,
		Run: func(ctx context.Context, inv *commands.Invocation) error {
			matches, err := svc.MutualMatches(ctx, inv.Event.GroupID)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				return inv.Reply(ctx, "💔 Nenhum match dessa vez.")
			}
			var b strings.Builder
			b.WriteString("💘 *Matches*\n")
			var mentions []string
			for _, m := range matches {
				fmt.Fprintf(&b, "\n@%s + @%s", phone(m.A), phone(m.B))
				mentions = append(mentions, m.A, m.B)
			}
			return inv.Send(ctx, comms.OutboundMessage{Text: b.String(), Mentions: mentions})
		},
	}
}

// requireManager allows the activator of the active game and group admins.
func requireManager(ctx context.Context, svc GameService, inv *commands.Invocation, v games.Variant) error {
	g, err := svc.ActiveGame(ctx, inv.Event.GroupID, v)
	if err != nil {
		return err
	}
	if g.ActivatorID == inv.Event.SenderID || inv.IsAdmin(ctx) {
		return nil
	}
	return ErrNotActivator
}

func startMessage(v games.Variant, revealCmd string) string {
	if v == games.VariantConfession {
		return "🤫 *Confissões anônimas abertas!*\n" +
			"Me manda no privado: confissão: <seu segredo>\n" +
			"Ninguém vai saber que foi você. Para revelar: *" + revealCmd + "*"
	}
	return "📸 *Jogo das fotos começou!*\n" +
		"Me manda uma foto no privado, uma por pessoa.\n" +
		"Para revelar: *" + revealCmd + "*"
}

func renderRanking(v games.Variant, kind games.ReactionKind, entries []games.RankEntry) string {
	var label string
	for _, c := range v.Vocabulary() {
		if c.Kind == kind {
			label = c.Emoji + " " + c.Label
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *Ranking de %s* por %s\n", v.Noun(), label)
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%d. %s #%d — %d", i+1, itemLabel(v), e.Item.RevealOrder, e.Count)
	}
	return b.String()
}

func itemLabel(v games.Variant) string {
	if v == games.VariantConfession {
		return "Confissão"
	}
	return "Foto"
}

func kindNames(v games.Variant) string {
	vocab := v.Vocabulary()
	names := make([]string, len(vocab))
	for i, c := range vocab {
		names[i] = string(c.Kind)
	}
	return strings.Join(names, "|")
}

func phone(id string) string {
	number, _, _ := strings.Cut(id, "@")
	return number
}
