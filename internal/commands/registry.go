package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alekspetrov/turma/internal/comms"
)

// Registry holds commands by canonical name and resolves aliases.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
}

// normalizeName lower-cases and folds accents so "confissões" resolves like
// "confissoes".
func normalizeName(name string) string {
	return comms.FoldAccents(strings.ToLower(strings.TrimSpace(name)))
}

// Register adds cmd. Names and aliases share one namespace.
func (r *Registry) Register(cmd *Command) error {
	if cmd.Run == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	name := normalizeName(cmd.Name)
	if name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if _, taken := r.aliases[name]; taken {
		return fmt.Errorf("command %q already registered", name)
	}
	for _, a := range cmd.Aliases {
		if _, taken := r.aliases[normalizeName(a)]; taken {
			return fmt.Errorf("alias %q of %q already registered", a, name)
		}
	}

	cmd.Name = name
	if cmd.Scope == "" {
		cmd.Scope = ScopeAny
	}
	r.commands[name] = cmd
	r.aliases[name] = name
	for _, a := range cmd.Aliases {
		r.aliases[normalizeName(a)] = name
	}
	return nil
}

// MustRegister registers every command and panics on conflicts.
func (r *Registry) MustRegister(cmds ...*Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// Canonical maps a name or alias to the canonical name. Unknown names are
// returned normalized.
func (r *Registry) Canonical(name string) string {
	name = normalizeName(name)
	if c, ok := r.aliases[name]; ok {
		return c
	}
	return name
}

// Lookup finds a command by name or alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[r.Canonical(name)]
	return cmd, ok
}

// Commands returns every command sorted by category then name.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Suggest returns up to limit canonical names close to name: within edit
// distance 2 of a name or alias, or sharing its prefix.
func (r *Registry) Suggest(name string, limit int) []string {
	name = normalizeName(name)
	if name == "" {
		return nil
	}

	best := make(map[string]int)
	for alias, canonical := range r.aliases {
		d := levenshtein(name, alias)
		if d > 2 && !strings.HasPrefix(alias, name) && !strings.HasPrefix(name, alias) {
			continue
		}
		if prev, ok := best[canonical]; !ok || d < prev {
			best[canonical] = d
		}
	}

	out := make([]string, 0, len(best))
	for c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if best[out[i]] != best[out[j]] {
			return best[out[i]] < best[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
