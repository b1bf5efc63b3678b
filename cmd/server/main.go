package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/logging"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/metrics"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/prospect"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/store"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Overload lets a local .env win over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database", "driver", cfg.Database.Driver, "auto_migrate", cfg.Database.AutoMigrate)

	imports := core.NewService(db, cfg.Import)
	if cfg.Metrics.Enabled {
		metrics.Init(func() float64 { return float64(imports.ActiveImports()) })
	}

	// The reaper sweeps jobs left running by a dead process at once, then
	// on every tick.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go imports.StartReaper(jobCtx)

	server := web.NewServer(imports, prospect.NewService(db), db, cfg)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := imports.LimiterStatus(); status.Active > 0 {
			slog.Info("cancelling running imports", "active", status.Active)
		}
		if err := imports.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not stop in time", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
