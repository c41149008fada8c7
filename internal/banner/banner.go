// Package banner prints the turma startup banner.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alekspetrov/turma/internal/health"
)

// Logo is the ASCII art logo for turma
const Logo = `
   ████████╗██╗   ██╗██████╗ ███╗   ███╗ █████╗
   ╚══██╔══╝██║   ██║██╔══██╗████╗ ████║██╔══██╗
      ██║   ██║   ██║██████╔╝██╔████╔██║███████║
      ██║   ██║   ██║██╔══██╗██║╚██╔╝██║██╔══██║
      ██║   ╚██████╔╝██║  ██║██║ ╚═╝ ██║██║  ██║
      ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚═╝╚═╝  ╚═╝
`

// Tagline is the project tagline
const Tagline = "Games and chat for your group"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7eb8da")) // steel blue

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3d4450")) // slate

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e")) // mid gray

	statusStyles = map[health.Status]lipgloss.Style{
		health.StatusOK:       lipgloss.NewStyle().Foreground(lipgloss.Color("#7ec699")), // sage green
		health.StatusWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#d4a054")), // amber
		health.StatusError:    lipgloss.NewStyle().Foreground(lipgloss.Color("#d48a8a")), // dusty rose
		health.StatusDisabled: lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e")),
	}
)

const divider = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Info is what the startup banner shows.
type Info struct {
	Version string
	Bridge  string
	Store   string
	Health  string // listen address, empty when disabled
	Checks  []health.Check
}

// PrintWithVersion prints the logo with version info
func PrintWithVersion(w io.Writer, version string) {
	_, _ = fmt.Fprint(w, titleStyle.Render(Logo))
	_, _ = fmt.Fprintf(w, "\n   %s\n   v%s\n\n", Tagline, version)
}

// Startup prints the full startup banner with dependency status.
func Startup(w io.Writer, info Info) {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("TURMA v%s", info.Version)))
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(divider))
	b.WriteString("\n")

	row := func(label, value string) {
		if value == "" {
			value = "disabled"
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-8s", label+":")), value)
	}
	row("Bridge", info.Bridge)
	row("Store", info.Store)
	row("Health", info.Health)

	if len(info.Checks) > 0 {
		b.WriteString("\n")
		for _, c := range info.Checks {
			style := statusStyles[c.Status]
			line := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Name)
			if c.Message != "" {
				line += " (" + c.Message + ")"
			}
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString("Listening... (Ctrl+C to stop)\n")
	b.WriteString(dividerStyle.Render(divider))
	b.WriteString("\n\n")

	_, _ = io.WriteString(w, b.String())
}
