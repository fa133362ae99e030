// Package main - точка входа движка привычек.
//
// Процесс поднимает HTTP API поверх движка серий, советника и подбора
// напарников: PostgreSQL хранит серии и кандидатов, Redis - кэш советов,
// отметки выполнения и присутствие, шина событий связывает команды
// с обработчиками.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alem-hub/habit-engine/config"
	"github.com/alem-hub/habit-engine/internal/application/command"
	"github.com/alem-hub/habit-engine/internal/application/eventhandler"
	"github.com/alem-hub/habit-engine/internal/application/query"
	"github.com/alem-hub/habit-engine/internal/domain/buddy"
	"github.com/alem-hub/habit-engine/internal/domain/coaching"
	"github.com/alem-hub/habit-engine/internal/domain/routine"
	"github.com/alem-hub/habit-engine/internal/domain/shared"
	"github.com/alem-hub/habit-engine/internal/domain/streak"
	"github.com/alem-hub/habit-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/habit-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/habit-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/habit-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/habit-engine/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/alem-hub/habit-engine/internal/interface/http"
	"github.com/alem-hub/habit-engine/internal/interface/http/handlers"
	"github.com/alem-hub/habit-engine/pkg/circuitbreaker"
	"github.com/alem-hub/habit-engine/pkg/logger"
	"github.com/alem-hub/habit-engine/pkg/retry"
	"github.com/alem-hub/habit-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL (or DB_HOST and DB_USER) is required")
	}

	log := setupLogger(cfg)
	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("service", cfg.App.Name))

	log.Info("starting habit engine",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	onRetry := func(what string) func(int, error, time.Duration) {
		return func(attempt int, err error, delay time.Duration) {
			log.Warn("connection attempt failed", "target", what, "attempt", attempt, "retry_in", delay, "error", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	settings := postgres.DefaultPoolSettings()
	settings.MaxConns = int32(cfg.Database.MaxOpenConns)
	settings.MinConns = int32(min(cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns))
	settings.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	settings.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	settings.QueryTimeout = cfg.Database.QueryTimeout

	var db *postgres.Connection
	err = retry.Startup(cfg.Database.ConnectAttempts, onRetry("postgres")).Do(ctx, func(ctx context.Context) error {
		var err error
		db, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL, settings)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		db.Close()
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(db).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", "applied", applied)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (без него кэш, отметки и присутствие недоступны)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		breaker := redis.NewBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		})
		err = retry.Startup(cfg.Database.ConnectAttempts, onRetry("redis")).Do(ctx, func(ctx context.Context) error {
			var err error
			cache, err = connectRedis(ctx, cfg.Redis, breaker)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing redis connection")
			_ = cache.Close()
		}()
		log.Info("redis connection established")
	} else {
		log.Warn("redis disabled: advice cache, routine completion and presence are off")
		for _, f := range []string{config.FeatureAdviceCache, config.FeatureRoutineCompletion, config.FeatureBuddyPresence} {
			_ = cfg.Features.DisableFeature(f)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	streaks := postgres.NewStreakRepository(db)
	directory := postgres.NewCandidateDirectory(db)
	connections := postgres.NewConnectionRepository(db)

	var (
		adviceCache coaching.Cache
		completions routine.CompletionLog
		presence    buddy.Presence
		reporter    buddy.PresenceReporter
	)
	if cache != nil {
		tracker := redis.NewPresenceTracker(cache, cfg.Engine.PresenceTTL)
		if cfg.Engine.AdviceCacheTTL > 0 {
			adviceCache = redis.NewAdviceCache(cache, cfg.Engine.AdviceCacheTTL)
		}
		completions = redis.NewCompletionLog(cache, timeutil.NewClock(cfg.App.Location))
		presence = tracker
		reporter = tracker
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultLocalConfig()
	busConfig.Logger = log
	if !cfg.Observability.EventMetricsEnabled {
		busConfig.Stats = nil
	}

	bus, eventStats, err := newEventBus(cache, busConfig, log)
	if err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ДОМЕН И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	catalog := routine.DefaultCatalog()

	adjustEngine, err := streak.NewEngineByName(streak.PolicyName(cfg.Engine.AdjustPolicy))
	if err != nil {
		return err
	}
	completionEngine, err := streak.NewEngineByName(streak.PolicyName(cfg.Engine.CompletionPolicy))
	if err != nil {
		return err
	}

	matcher, err := buddy.NewMatcher(catalog)
	if err != nil {
		return err
	}

	advisorConfig := coaching.Config{Latency: cfg.Engine.AdviceLatency}
	advisors, err := query.NewAdvisorPool(catalog, advisorConfig)
	if err != nil {
		return err
	}

	if err := bus.SubscribeAll(eventhandler.NewEventLogger(log).Handle); err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Config{Logger: log, Location: cfg.App.Location})

	if adviceCache != nil {
		warmer, err := eventhandler.NewOnMilestoneReachedHandler(catalog, adjustEngine, adviceCache,
			advisorConfig, log, eventhandler.DefaultMilestoneConfig())
		if err != nil {
			return err
		}
		if err := bus.Subscribe(shared.EventStreakMilestoneReached, warmer.Handle); err != nil {
			return err
		}

		if cfg.Engine.WarmupCron != "" && cfg.Engine.WarmupMilestones > 0 {
			expr, err := scheduler.ParseCronExpression(cfg.Engine.WarmupCron)
			if err != nil {
				return fmt.Errorf("ENGINE_WARMUP_CRON: %w", err)
			}
			job := jobs.NewAdviceWarmupJob(warmer, warmupDays(adjustEngine, cfg.Engine.WarmupMilestones), log)
			if err := sched.Register(job, expr); err != nil {
				return err
			}
		}
	}

	if cfg.Observability.StatsInterval > 0 && eventStats != nil {
		if err := sched.Register(jobs.NewEventStatsJob(eventStats, log), scheduler.Every(cfg.Observability.StatsInterval)); err != nil {
			return err
		}
	}

	limits := query.Limits{Default: cfg.Engine.BuddyLimit, Max: cfg.Engine.MaxBuddyLimit}
	features := cfg.Features

	health := handlers.NewMonitor(cfg.App.Version, 0)
	health.Register("postgres", handlers.Critical, handlers.Ping(db))
	health.Register("advisor", handlers.Critical, advisors.Check)
	if cache != nil {
		health.Register("redis", handlers.Optional,
			handlers.AllOf(handlers.Ping(cache), handlers.BreakerClosed(cache.Breaker())))
	} else {
		health.Register("redis", handlers.Optional, handlers.Disabled("REDIS_DISABLED=true"))
	}

	server := httpapi.NewServer(httpConfig(cfg.HTTP), httpapi.Dependencies{
		AdjustStreak:      command.NewAdjustStreakHandler(streaks, adjustEngine, bus, features),
		ResetStreak:       command.NewResetStreakHandler(streaks, adjustEngine, bus),
		CompleteRoutine:   command.NewCompleteRoutineHandler(catalog, completions, streaks, completionEngine, bus, features),
		ConnectBuddy:      command.NewConnectBuddyHandler(matcher, directory, presence, connections, bus, features),
		RegisterCandidate: command.NewRegisterCandidateHandler(directory),
		ReportPresence:    command.NewReportPresenceHandler(catalog, reporter, directory),
		GetStreak:         query.NewGetStreakHandler(streaks, adjustEngine),
		GetAdvice:         query.NewGetAdviceHandler(catalog, streaks, adjustEngine, advisors, adviceCache, features, appLog),
		FindBuddies:       query.NewFindBuddiesHandler(matcher, directory, presence, connections, features, limits, appLog),
		ListConnections:   query.NewListConnectionsHandler(connections),
		ListRoutines:      query.NewListRoutinesHandler(catalog, advisors),
		Stats: func() any {
			stats := map[string]any{
				"active_advisors": advisors.Active(),
				"features":        features.Snapshot(),
			}
			if eventStats != nil {
				stats["events"] = eventStats.Snapshot()
			}
			if cache != nil {
				stats["redis"] = cache.Breaker().Stats()
			}
			pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if pool, err := db.Health(pingCtx); err == nil && pool.Healthy {
				stats["postgres"] = map[string]any{
					"total_conns":    pool.TotalConns,
					"acquired_conns": pool.AcquiredConns,
					"idle_conns":     pool.IdleConns,
					"max_conns":      pool.MaxConns,
					"ping":           pool.PingLatency.String(),
				}
			}
			stats["jobs"] = sched.Jobs()
			return stats
		},
		Logger:        appLog,
		HealthChecker: health,
		Version:       cfg.App.Version,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	serverErr := server.StartAsync()
	log.Info("habit engine is running", "addr", cfg.HTTP.Addr())

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для инфраструктуры и обработчиков событий.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name)
	slog.SetDefault(log)
	return log
}

// connectRedis подключается по REDIS_URL, если он задан, иначе по хосту и порту.
func connectRedis(ctx context.Context, cfg config.RedisConfig, breaker *circuitbreaker.Breaker) (*redis.Cache, error) {
	if cfg.URL == "" {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Host
		rc.Port = cfg.Port
		rc.Password = cfg.Password
		rc.DB = cfg.DB
		rc.PoolSize = cfg.PoolSize
		rc.MinIdleConns = cfg.MinIdleConns
		rc.DialTimeout = cfg.DialTimeout
		rc.ReadTimeout = cfg.ReadTimeout
		rc.WriteTimeout = cfg.WriteTimeout
		return redis.NewCache(ctx, rc, breaker)
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, retry.Stop(fmt.Errorf("invalid REDIS_URL: %w", err))
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", redis.ErrCacheConnection, err)
	}
	return redis.NewCacheFromClient(client, breaker), nil
}

type eventBus interface {
	shared.EventBus
	Close() error
}

// newEventBus выбирает Redis Pub/Sub, если Redis доступен: тогда события
// видят все экземпляры. Иначе шина живёт в памяти процесса.
func newEventBus(cache *redis.Cache, cfg messaging.LocalConfig, log *slog.Logger) (eventBus, *messaging.Stats, error) {
	if cache == nil {
		return messaging.NewLocalBus(cfg), cfg.Stats, nil
	}

	bus, err := messaging.NewRedisRelay(messaging.RelayConfig{
		PubSub: messaging.NewGoRedisPubSub(cache.Client()),
		Local:  cfg,
		Logger: log,
	})
	if err != nil {
		return nil, nil, err
	}
	return bus, cfg.Stats, nil
}

func httpConfig(c config.HTTPConfig) httpapi.Config {
	hc := httpapi.DefaultConfig()
	hc.Host = c.Host
	hc.Port = c.Port
	hc.ReadTimeout = c.ReadTimeout
	hc.WriteTimeout = c.WriteTimeout
	hc.IdleTimeout = c.IdleTimeout
	hc.AllowedOrigins = c.CORSOrigins
	hc.RateLimitPerMinute = c.RateLimit
	hc.APIKeys = c.APIKeys
	return hc
}

// warmupDays returns the first n milestone lengths of e.
func warmupDays(e *streak.Engine, n int) []int {
	days := make([]int, 0, n)
	for d := 0; len(days) < n; {
		next := e.NextMilestone(d)
		if next <= d {
			break
		}
		days = append(days, next)
		d = next
	}
	return days
}
