package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"coitrack/internal/auth"
	"coitrack/internal/coi"
	coihandler "coitrack/internal/coi/handler"
	"coitrack/internal/contractor"
	contractorhandler "coitrack/internal/contractor/handler"
	"coitrack/internal/holdharmless"
	hhhandler "coitrack/internal/holdharmless/handler"
	"coitrack/internal/notification"
	"coitrack/internal/platform/config"
	"coitrack/internal/platform/httpserver"
	"coitrack/internal/platform/logger"
	"coitrack/internal/platform/metrics"
	"coitrack/internal/platform/middleware"
	platformredis "coitrack/internal/platform/redis"
	"coitrack/internal/program"
	programhandler "coitrack/internal/program/handler"
	"coitrack/internal/project"
	projecthandler "coitrack/internal/project/handler"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		programStore    program.Store
		projectStore    project.Store
		contractorStore contractor.Store
		coiStore        coi.Store
		agreementStore  holdharmless.Store
	)
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		defer db.Close()

		programStore = program.NewPostgresStore(db)
		projectStore = project.NewPostgresStore(db)
		contractorStore = contractor.NewPostgresStore(db)
		coiStore = coi.NewPostgresStore(db)
		agreementStore = holdharmless.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		programStore = program.NewInMemoryStore()
		projectStore = project.NewInMemoryStore()
		contractorStore = contractor.NewInMemoryStore()
		coiStore = coi.NewInMemoryStore()
		agreementStore = holdharmless.NewInMemoryStore()
		log.Warn("POSTGRES_URL not set, using in-memory stores")
	}

	// Notifications: Kafka when configured, structured log otherwise; Redis
	// dedupe when configured.
	var sink notification.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := notification.NewKafkaSink(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("create kafka sink: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("using kafka notification sink", "brokers", cfg.Kafka.Brokers)
	} else {
		sink = notification.NewLogSink(log)
		log.Warn("KAFKA_BROKERS not set, notifications go to the log")
	}

	dispatcherOpts := []notification.DispatcherOption{notification.WithMetrics(m)}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		dispatcherOpts = append(dispatcherOpts,
			notification.WithDeduper(notification.NewRedisDeduper(redisClient.Client, 24*time.Hour)))
	}
	dispatcher := notification.NewDispatcher(sink, log, dispatcherOpts...)

	// Services.
	programSvc := program.NewService(programStore)
	projectSvc := project.NewService(projectStore)
	contractorSvc := contractor.NewService(contractorStore)
	agreementSvc := holdharmless.NewService(
		agreementStore, coiStore, projectSvc, holdharmless.NewRefDocuments(), dispatcher, log,
		holdharmless.WithMetrics(m),
	)
	coiSvc := coi.NewService(
		coiStore, programSvc, projectSvc, contractorSvc, dispatcher, log,
		coi.WithApprovalHook(agreementSvc),
		coi.WithMetrics(m),
	)

	jwtSvc := auth.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	// Router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Tracing)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Workflow surface: any authenticated party; services authorize the
	// specifics.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtSvc, log))
		coihandler.New(coiSvc, log).Register(r)
		hhhandler.New(agreementSvc, log).Register(r)
	})

	// Registry surface: operator endpoints behind the admin token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtSvc, log))
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		programhandler.New(programSvc, log).Register(r)
		projecthandler.New(projectSvc, log).Register(r)
		contractorhandler.New(contractorSvc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting coitrack", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
