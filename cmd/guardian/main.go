package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/identity-guardian/guardian/internal/config"
	"github.com/identity-guardian/guardian/internal/correlation"
	"github.com/identity-guardian/guardian/internal/directory"
	"github.com/identity-guardian/guardian/internal/dispatch"
	"github.com/identity-guardian/guardian/internal/feed"
	"github.com/identity-guardian/guardian/internal/handlers"
	"github.com/identity-guardian/guardian/internal/logging"
	"github.com/identity-guardian/guardian/internal/middleware"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/notify"
	"github.com/identity-guardian/guardian/internal/remediation"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/risk"
	"github.com/identity-guardian/guardian/internal/server"
	"github.com/identity-guardian/guardian/internal/signals"
	"github.com/identity-guardian/guardian/internal/telemetry"
	"github.com/identity-guardian/guardian/internal/workflows"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	// Repository: Postgres when enabled, in-memory otherwise.
	var repo repository.Repository
	if cfg.Database.Postgres.Enabled {
		connString := cfg.Database.Postgres.ConnString()

		log.Println("Running database migrations...")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations completed")

		repo, err = repository.NewPostgresRepository(context.Background(), connString)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
	} else {
		log.Println("PostgreSQL disabled, using in-memory repository")
		repo = repository.NewMemoryRepository()
	}
	defer repo.Close()

	// Signal log: Redis when enabled, in-memory otherwise.
	var store signals.Store
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		store = signals.NewRedisStore(redis.NewClient(opts), cfg.Risk.RetentionHorizon)
	} else {
		log.Println("Redis disabled, using in-memory signal log")
		store = signals.NewMemoryStore(cfg.Risk.RetentionHorizon)
	}
	defer store.Close()

	// Notifier: NATS when enabled, noop otherwise.
	var notifier notify.Notifier = notify.Noop{}
	if cfg.NATS.Enabled {
		natsCfg := notify.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = cfg.NATS.Name
		n, err := notify.NewNATSNotifier(natsCfg)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer n.Close()
		notifier = n
	}

	metrics := telemetry.NewDefault()

	dir := directory.NewHTTPClient(cfg.Directory.URL, cfg.Directory.Token, cfg.Directory.Timeout)

	collector := signals.NewCollector(store)
	correlator := correlation.NewCorrelator(correlationPairs(cfg.Risk.CorrelationPairs))
	scorer := risk.NewScorer(risk.Config{
		Weights:               signalWeights(cfg.Risk.Weights),
		CorrelationMultiplier: cfg.Risk.CorrelationMultiplier,
		MediumThreshold:       cfg.Risk.MediumThreshold,
		HighThreshold:         cfg.Risk.HighThreshold,
		CriticalThreshold:     cfg.Risk.CriticalThreshold,
	})
	engine := remediation.NewEngine(remediation.Config{
		AutoBlockThreshold: cfg.Remediation.AutoBlockThreshold,
		BlockTemplateRef:   cfg.Remediation.BlockTemplateRef,
		CallTimeout:        cfg.Remediation.CallTimeout,
	}, repo, dir, notifier, logger, metrics)

	svc := workflows.NewService(workflows.Options{
		RetentionHorizon: cfg.Risk.RetentionHorizon,
		SoDConflicts:     cfg.Risk.SoDConflicts,
	}, store, collector, correlator, scorer, engine, repo, dir, logger, metrics)

	dispatcher := dispatch.New(logger, metrics)
	svc.Register(dispatcher)

	// Optional SIEM feed polling in background.
	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	if cfg.Feed.Enabled {
		poller, err := feed.NewPoller(feed.Config{
			URL:           cfg.Feed.URL,
			Username:      cfg.Feed.Username,
			Password:      cfg.Feed.Password,
			TLSSkipVerify: cfg.Feed.Insecure,
			IndexPattern:  cfg.Feed.IndexPattern,
			PollInterval:  cfg.Feed.PollInterval,
		}, collector, logger)
		if err != nil {
			log.Fatalf("Failed to create feed poller: %v", err)
		}
		go poller.Run(feedCtx)
	}

	handler := handlers.NewHandler(dispatcher, collector, store, engine, repo, logger, metrics)
	auth := middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.Enabled)
	router := server.NewRouter(handler, auth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Guardian service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

// correlationPairs converts configured pairs into correlator pairs.
func correlationPairs(pairs []config.CorrelationPair) []correlation.Pair {
	out := make([]correlation.Pair, 0, len(pairs))
	for _, p := range pairs {
		kinds := make([]models.SignalKind, 0, len(p.Kinds))
		for _, k := range p.Kinds {
			kinds = append(kinds, models.SignalKind(k))
		}
		out = append(out, correlation.Pair{Kinds: kinds, Window: p.Window})
	}
	return out
}

// signalWeights converts configured weights into typed scoring weights.
func signalWeights(weights map[string]float64) map[models.SignalKind]float64 {
	out := make(map[models.SignalKind]float64, len(weights))
	for k, w := range weights {
		out[models.SignalKind(k)] = w
	}
	return out
}
