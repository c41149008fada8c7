package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/logging"
)

// Config holds health endpoint settings.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// DefaultConfig returns the health endpoint defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		Addr:         "127.0.0.1:8090",
		CheckTimeout: 2 * time.Second,
	}
}

// Server serves /healthz and /status.
type Server struct {
	cfg     *Config
	src     Sources
	clock   clock.Clock
	started time.Time
	log     *slog.Logger
}

// NewServer creates a Server. c may be nil.
func NewServer(cfg *Config, src Sources, c clock.Clock) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c = clock.Or(c)
	return &Server{
		cfg:     cfg,
		src:     src,
		clock:   c,
		started: c.Now(),
		log:     logging.WithComponent("health"),
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("health endpoint listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	checks := RunChecks(r.Context(), s.src.Probes, s.cfg.CheckTimeout)
	if !Healthy(checks) {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Report(r.Context()))
}

// Report builds the status report.
func (s *Server) Report(ctx context.Context) *Report {
	uptime := s.clock.Now().Sub(s.started)
	rep := &Report{
		Uptime:              uptime.Round(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		CredentialCooldowns: []Cooldown{},
		ModelCooldowns:      []Cooldown{},
		Checks:              RunChecks(ctx, s.src.Probes, s.cfg.CheckTimeout),
	}
	rep.Healthy = Healthy(rep.Checks)

	if s.src.Pending != nil {
		rep.PendingInteractions = s.src.Pending()
	}
	if s.src.Dedup != nil {
		rep.DedupEntries = s.src.Dedup()
	}
	if s.src.History != nil {
		rep.HistoryChats = s.src.History()
	}
	if s.src.Cooldowns != nil {
		snap := s.src.Cooldowns()
		rep.CredentialCooldowns = cooldowns(snap.At, snap.CredWindow, snap.Credentials)
		rep.ModelCooldowns = cooldowns(snap.At, snap.ModelWindow, snap.Models)
	}
	if s.src.Jobs != nil {
		rep.Jobs = s.src.Jobs()
	}
	return rep
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
