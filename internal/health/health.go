// Package health exposes liveness and status endpoints.
package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alekspetrov/turma/internal/genai"
	"github.com/alekspetrov/turma/internal/scheduler"
)

// Status is the outcome of a check.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// String returns the status name used in JSON output.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for _, st := range []Status{StatusOK, StatusWarning, StatusError, StatusDisabled} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Check is one dependency check result.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Probe checks one dependency. A nil Check marks the dependency disabled.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool // failures are warnings
}

// RunChecks runs every probe with timeout.
func RunChecks(ctx context.Context, probes []Probe, timeout time.Duration) []Check {
	checks := make([]Check, 0, len(probes))
	for _, p := range probes {
		if p.Check == nil {
			checks = append(checks, Check{Name: p.Name, Status: StatusDisabled})
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(cctx)
		cancel()

		switch {
		case err == nil:
			checks = append(checks, Check{Name: p.Name, Status: StatusOK})
		case p.Optional:
			checks = append(checks, Check{Name: p.Name, Status: StatusWarning, Message: err.Error()})
		default:
			checks = append(checks, Check{Name: p.Name, Status: StatusError, Message: err.Error()})
		}
	}
	return checks
}

// Healthy reports whether no check failed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Sources feed the status report. Nil fields are omitted.
type Sources struct {
	Pending   func() int
	Dedup     func() int
	History   func() int
	Cooldowns func() genai.Snapshot
	Jobs      func() []scheduler.JobStatus
	Probes    []Probe
}

// Cooldown is the remaining cooldown of one credential or model.
type Cooldown struct {
	Name      string `json:"name"`
	Remaining string `json:"remaining"`
}

// Report is the /status payload.
type Report struct {
	Healthy             bool                  `json:"healthy"`
	Uptime              string                `json:"uptime"`
	UptimeSeconds       int64                 `json:"uptime_seconds"`
	PendingInteractions int                   `json:"pending_interactions"`
	DedupEntries        int                   `json:"dedup_entries"`
	HistoryChats        int                   `json:"history_chats"`
	CredentialCooldowns []Cooldown            `json:"credential_cooldowns"`
	ModelCooldowns      []Cooldown            `json:"model_cooldowns"`
	Jobs                []scheduler.JobStatus `json:"jobs,omitempty"`
	Checks              []Check               `json:"checks"`
}

// cooldowns lists the entries of marks still inside window.
func cooldowns(at time.Time, window time.Duration, marks map[string]time.Time) []Cooldown {
	out := []Cooldown{}
	for name, failed := range marks {
		if left := window - at.Sub(failed); left > 0 {
			out = append(out, Cooldown{Name: name, Remaining: left.Round(time.Second).String()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
