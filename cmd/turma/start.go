package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/turma/internal/adapters/bridge"
	"github.com/alekspetrov/turma/internal/banner"
	"github.com/alekspetrov/turma/internal/chat"
	"github.com/alekspetrov/turma/internal/clock"
	"github.com/alekspetrov/turma/internal/commands"
	"github.com/alekspetrov/turma/internal/commands/builtin"
	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/config"
	"github.com/alekspetrov/turma/internal/games"
	"github.com/alekspetrov/turma/internal/genai"
	"github.com/alekspetrov/turma/internal/health"
	"github.com/alekspetrov/turma/internal/intent"
	"github.com/alekspetrov/turma/internal/logging"
	"github.com/alekspetrov/turma/internal/pending"
	"github.com/alekspetrov/turma/internal/router"
	"github.com/alekspetrov/turma/internal/scheduler"
	"github.com/alekspetrov/turma/internal/store"
)

// historyRetention bounds the persisted chat history.
const historyRetention = 7 * 24 * time.Hour

func newStartCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Connect to the bridge and start answering messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("failed to init logging: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\n⏹  Shutting down...")
				cancel()
			}()

			client := bridge.New(cfg.Bridge)
			a, err := newApp(ctx, cfg, client, clock.Real{})
			if err != nil {
				return err
			}
			defer a.Close()
			a.probes = append([]health.Probe{{
				Name: "bridge",
				Check: func(context.Context) error {
					if !client.Connected() {
						return bridge.ErrNotConnected
					}
					return nil
				},
			}}, a.probes...)

			if !quiet {
				banner.Startup(os.Stdout, banner.Info{
					Version: version,
					Bridge:  cfg.Bridge.URL,
					Store:   cfg.Store.Driver + " " + cfg.Store.Path,
					Health:  healthAddr(cfg.Health),
					Checks:  health.RunChecks(ctx, a.probes[1:], cfg.Health.CheckTimeout),
				})
			}

			return a.Run(ctx, client)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip the startup banner")
	return cmd
}

func healthAddr(cfg *health.Config) string {
	if cfg == nil || !cfg.Enabled {
		return ""
	}
	return "http://" + cfg.Addr
}

// app is a fully wired bot.
type app struct {
	cfg        *config.Config
	store      *store.Store
	redis      *redis.Client
	games      *games.Service
	resolver   *pending.Resolver
	repo       *pending.MemoryRepository
	dedup      intent.Deduper
	dispatcher *commands.Dispatcher
	chat       *chat.Orchestrator
	engine     *genai.Engine
	router     *router.Handler
	scheduler  *scheduler.Scheduler
	probes     []health.Probe
	log        *slog.Logger
}

// newApp wires every component over transport.
func newApp(ctx context.Context, cfg *config.Config, transport comms.Transport, clk clock.Clock) (*app, error) {
	a := &app{cfg: cfg, log: logging.WithComponent("app")}

	st, err := store.Open(cfg.Store, store.WithClock(clk))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	a.probes = append(a.probes, health.Probe{Name: "store", Check: st.Ping})

	a.games = games.NewService(st, transport, cfg.Games, games.WithClock(clk))

	if err := a.initDedup(ctx, clk); err != nil {
		a.Close()
		return nil, err
	}

	a.repo = pending.NewMemoryRepository(cfg.Pending.TTL, clk)
	a.resolver = pending.NewResolver(a.repo, a.games, transport, st, cfg.Pending, pending.WithClock(clk))

	classifier := intent.NewClassifier(intent.Config{
		SelfID:     cfg.Bot.SelfID,
		Prefix:     cfg.Bot.Prefix,
		StaleAfter: cfg.Bot.StaleAfter,
	}, a.dedup, a.resolver, clk)

	registry := commands.NewRegistry()
	a.dispatcher = commands.NewDispatcher(registry, transport, st, st, commands.Config{
		Prefix:   cfg.Bot.Prefix,
		OwnerIDs: cfg.Bot.OwnerIDs,
	})

	deps := builtin.Deps{
		BotName: cfg.Bot.Name,
		Games:   a.games,
		Toggler: st,
		Usage:   st,
	}

	routerDeps := router.Deps{
		Classifier: classifier,
		Games:      a.games,
		Pending:    a.resolver,
		Commands:   a.dispatcher,
		Transport:  transport,
		Log:        st,
		Clock:      clk,
	}

	if cfg.AI.Enabled() {
		tracker := genai.NewCooldownTracker(cfg.AI, clk)
		a.engine = genai.NewEngine(genai.NewGeminiBackend(cfg.AI), cfg.AI, tracker)
		history := chat.NewHistory(cfg.Chat.HistorySize, cfg.Chat.HistoryTTL, clk)
		a.chat = chat.New(a.engine, transport, history, cfg.Chat,
			chat.WithCommands(a.dispatcher, registry),
			chat.WithStore(st),
		)
		deps.Asker = a.chat
		routerDeps.Chat = a.chat
		a.probes = append(a.probes, health.Probe{Name: "ai", Check: a.engine.Check, Optional: true})
	} else {
		a.probes = append(a.probes, health.Probe{Name: "ai"})
	}

	if err := builtin.Register(registry, deps); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	a.router = router.New(routerDeps, router.Config{})

	if err := a.initScheduler(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initDedup(ctx context.Context, clk clock.Clock) error {
	cfg := a.cfg.Dedup
	if cfg.Backend != "redis" {
		a.dedup = intent.NewMemoryDeduper(cfg.TTL, clk)
		return nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid dedup.redis_url: %w", err)
	}
	a.redis = redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	a.dedup = intent.NewRedisDeduper(a.redis, cfg.TTL, cfg.KeyPrefix)
	a.probes = append(a.probes, health.Probe{
		Name:     "redis",
		Check:    func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
		Optional: true,
	})
	return nil
}

func (a *app) initScheduler(ctx context.Context) error {
	a.scheduler = scheduler.New()

	jobs := []scheduler.Job{
		scheduler.SweepJob("pending-sweep", a.cfg.Pending.SweepSchedule, a.repo.Sweep),
		{
			Name:     "history-prune",
			Schedule: a.cfg.Chat.SweepSchedule,
			Run: func(ctx context.Context) (int, error) {
				return a.store.PruneHistory(ctx, historyRetention)
			},
		},
	}
	if mem, ok := a.dedup.(*intent.MemoryDeduper); ok {
		jobs = append(jobs, scheduler.SweepJob("dedup-sweep", a.cfg.Pending.SweepSchedule, mem.Sweep))
	}
	if a.chat != nil {
		jobs = append(jobs,
			scheduler.SweepJob("history-sweep", a.cfg.Chat.SweepSchedule, a.chat.History().Sweep),
			scheduler.SweepJob("cooldown-sweep", a.cfg.AI.SweepSchedule, a.engine.Tracker().Sweep),
		)
	}

	for _, job := range jobs {
		if err := a.scheduler.Add(ctx, job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}
	return nil
}

// sources feeds the status report.
func (a *app) sources() health.Sources {
	src := health.Sources{
		Pending: a.repo.Len,
		Jobs:    a.scheduler.Status,
		Probes:  a.probes,
	}
	if mem, ok := a.dedup.(*intent.MemoryDeduper); ok {
		src.Dedup = mem.Len
	}
	if a.chat != nil {
		src.History = a.chat.History().Len
		src.Cooldowns = a.engine.Tracker().Snapshot
	}
	return src
}

// Run connects to the bridge and serves until ctx is cancelled.
func (a *app) Run(ctx context.Context, client *bridge.Client) error {
	if n, err := a.scheduler.RunNow(ctx, "history-prune"); err != nil {
		a.log.Warn("startup prune failed", slog.Any("error", err))
	} else if n > 0 {
		a.log.Info("pruned old history", slog.Int("removed", n))
	}

	a.scheduler.Start()
	defer a.scheduler.Stop()

	if a.cfg.Health.Enabled {
		srv := health.NewServer(a.cfg.Health, a.sources(), clock.Real{})
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.log.Error("health endpoint stopped", slog.Any("error", err))
			}
		}()
	}

	err := client.Run(ctx, a.router)
	a.drain()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// drain waits for background writes of in-flight handlers.
func (a *app) drain() {
	a.router.Wait()
	a.dispatcher.Wait()
	if a.chat != nil {
		a.chat.Wait()
	}
}

// Close releases the store and the redis client.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", slog.Any("error", err))
		}
	}
}
