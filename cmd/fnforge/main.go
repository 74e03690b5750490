package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fnforge/fnforge/internal/builder"
	"github.com/fnforge/fnforge/internal/docker"
	"github.com/fnforge/fnforge/internal/domain"
	httpx "github.com/fnforge/fnforge/internal/http"
	"github.com/fnforge/fnforge/internal/runtime/kubernetes"
	"github.com/fnforge/fnforge/internal/service/deploy"
	"github.com/fnforge/fnforge/internal/service/lifecycle"
	"github.com/fnforge/fnforge/internal/service/run"
	"github.com/fnforge/fnforge/internal/store"
	"github.com/fnforge/fnforge/internal/store/memory"
	"github.com/fnforge/fnforge/internal/store/postgres"
	"github.com/fnforge/fnforge/internal/workspace"
	"github.com/fnforge/fnforge/pkg/config"
	"github.com/fnforge/fnforge/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("fnforge", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dockerClient, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer dockerClient.Close()

	if err := dockerClient.Ping(ctx); err != nil {
		log.Error("docker ping failed", "error", err)
		os.Exit(1)
	}

	workspaceManager, err := workspace.New(cfg.Workdir)
	if err != nil {
		log.Error("workspace init failed", "error", err, "workdir", cfg.Workdir)
		os.Exit(1)
	}

	var functions store.FunctionStore
	var runs store.RunStore
	var dbHealth func(context.Context) error
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := postgres.New(pool)
		if err := pg.Ensure(ctx); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		functions, runs, dbHealth = pg, pg, pool.Ping
	} else {
		log.Warn("no DATABASE_URL configured, using in-memory store")
		mem := memory.New()
		functions, runs = mem, mem
	}

	pods, err := kubernetes.New(cfg.Namespace, log)
	if err != nil {
		log.Error("kubernetes client init failed", "error", err)
		os.Exit(1)
	}

	buildSvc := builder.New(dockerClient, workspaceManager, log, cfg)
	deploySvc := deploy.New(buildSvc, log, os.Stdout, cfg.PollInterval)
	runSvc := run.New(pods, log, cfg.Registry)
	tracker := lifecycle.New(buildSvc, functions, runs, log)
	monitor := lifecycle.NewMonitor(pods, runs, tracker, log, cfg.PollInterval*5)
	go monitor.Run(ctx)

	if cfg.FunctionsDir != "" {
		preloadFunctions(ctx, cfg.FunctionsDir, tracker, log)
	}

	router := httpx.NewRouter(log, buildSvc, deploySvc, runSvc, tracker, functions, runs, pods, dbHealth, cfg)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("fnforge server starting", "addr", cfg.Addr, "environment", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("fnforge server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// preloadFunctions registers function specs found in the configured
// directory so a fresh install starts with a usable catalog.
func preloadFunctions(ctx context.Context, dir string, tracker *lifecycle.Tracker, log *slog.Logger) {
	loaded, err := domain.LoadFunctionsDir(dir)
	if err != nil {
		log.Warn("function preload failed", "dir", dir, "error", err)
		return
	}
	for _, fn := range loaded {
		if err := tracker.SaveFunction(ctx, fn); err != nil {
			log.Warn("function preload save failed", "function", fn.Key(), "error", err)
			continue
		}
		log.Info("function preloaded", "function", fn.Key())
	}
}
