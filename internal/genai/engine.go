package genai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alekspetrov/turma/internal/logging"
)

// Engine is the only place AI requests are retried. Callers see one
// response or one ExhaustedError.
type Engine struct {
	backend Backend
	cfg     *Config
	tracker *CooldownTracker
	wait    func(ctx context.Context, d time.Duration) error
	log     *slog.Logger
}

// NewEngine creates an Engine over backend.
func NewEngine(backend Backend, cfg *Config, tracker *CooldownTracker) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if tracker == nil {
		tracker = NewCooldownTracker(cfg, nil)
	}
	return &Engine{
		backend: backend,
		cfg:     cfg,
		tracker: tracker,
		wait:    sleep,
		log:     logging.WithComponent("genai"),
	}
}

// Tracker returns the engine's cooldown tracker.
func (e *Engine) Tracker() *CooldownTracker { return e.tracker }

// Check reports ErrAllCooling when no credential is currently usable.
// Generate still tries them, ignoring the cooldowns.
func (e *Engine) Check(context.Context) error {
	snap := e.tracker.Snapshot()
	for _, cred := range e.cfg.Credentials {
		if !snap.CredentialCooling(cred.Label) {
			return nil
		}
	}
	return ErrAllCooling
}

// Generate runs req through the credential and model grid.
func (e *Engine) Generate(ctx context.Context, req *Request) (*Response, error) {
	var last error
	attempts := 0

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		plan := PlanRound(e.cfg.Credentials, e.cfg.Models, e.tracker.Snapshot())
		if plan.IgnoreCooldown {
			e.log.Warn("every candidate is cooling down, ignoring cooldowns", slog.Int("round", round))
		}

		skip := make(map[string]bool)
		for _, c := range plan.Candidates {
			if skip[c.Credential.Label] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			attempts++
			resp, err := e.attempt(ctx, c, req)
			if err == nil {
				if attempts > 1 {
					e.log.Info("generation recovered",
						slog.String("credential", c.Credential.Label),
						slog.String("model", c.Model),
						slog.Int("attempts", attempts))
				}
				return resp, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			last = err
			transient := IsTransient(err)
			e.tracker.RecordFailure(c.Credential.Label, c.Model, transient)
			e.log.Warn("generation attempt failed",
				slog.Int("round", round),
				slog.String("credential", c.Credential.Label),
				slog.String("model", c.Model),
				slog.Bool("transient", transient),
				slog.Any("error", err))

			// Rate limits are per model: the next model of the same
			// credential is tried. A rejected key is useless for any model.
			if IsAuth(err) {
				skip[c.Credential.Label] = true
			}
		}

		if round < e.cfg.MaxRounds {
			if err := e.wait(ctx, e.cfg.RoundBackoff); err != nil {
				return nil, err
			}
		}
	}

	if last == nil {
		last = errors.New("no credentials configured")
	}
	e.log.Error("generation exhausted",
		slog.Int("rounds", e.cfg.MaxRounds),
		slog.Int("attempts", attempts),
		slog.Any("error", last))
	return nil, &ExhaustedError{Rounds: e.cfg.MaxRounds, Attempts: attempts, Last: last}
}

func (e *Engine) attempt(ctx context.Context, c Candidate, req *Request) (*Response, error) {
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}

	resp, err := e.backend.Generate(ctx, c.Credential, c.Model, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || (resp.Call == nil && strings.TrimSpace(resp.Text) == "") {
		return nil, ErrEmptyResponse
	}
	resp.Model = c.Model
	resp.Credential = c.Credential.Label
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
