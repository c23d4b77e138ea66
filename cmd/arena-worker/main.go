package main

import (
    "context"
    "log"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "go.uber.org/zap"

    appcfg "github.com/park285/cheese-arena/internal/config"
    "github.com/park285/cheese-arena/internal/arenabuilder"
    "github.com/park285/cheese-arena/internal/obslog"
)

func main() {
    // .env is optional; real deployments inject the environment
    if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
        log.Printf("dotenv: %v", err)
    }

    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()

    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    deps, err := arenabuilder.New(ctx, cfg)
    if err != nil {
        obslog.L().Fatal("arena_init_failed", zap.Error(err))
    }
    defer func() { _ = deps.Close() }()

    obslog.L().Info("arena_worker_started",
        zap.Duration("sweep_interval", cfg.SweepInterval),
        zap.Int("time_controls", len(cfg.AllowedTimeControls)),
        zap.Bool("archive_postgres", cfg.DatabaseURL != ""),
        zap.Bool("webhook", cfg.NotifyWebhookURL != ""),
    )
    if err := deps.Run(ctx); err != nil {
        obslog.L().Error("arena_worker_error", zap.Error(err))
    }
    obslog.L().Info("arena_worker_stopped")
}
