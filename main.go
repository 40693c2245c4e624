package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billbatista/rateio/config"
	"github.com/billbatista/rateio/eventlogger"
	"github.com/billbatista/rateio/handler"
	"github.com/billbatista/rateio/ledger"
	"github.com/billbatista/rateio/middleware"
	"github.com/billbatista/rateio/scheduler"
	"github.com/billbatista/rateio/session"
	"github.com/billbatista/rateio/storage"
	"github.com/billbatista/rateio/user"
	"github.com/mattn/go-isatty"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	setupLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		printErrorAndExit("loading config", err)
	}
	if err := cfg.Validate(); err != nil {
		printErrorAndExit("validating config", err)
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		printErrorAndExit("database connection", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		printErrorAndExit("running migrations", err)
	}

	var evtlogger eventlogger.EventLogger = eventlogger.NewSqlEventLogger(db)
	if cfg.Events.AMQPURL != "" {
		publisher, err := eventlogger.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			printErrorAndExit("connecting to broker", err)
		}
		defer publisher.Close()
		evtlogger = eventlogger.Multi(evtlogger, publisher)
	}
	worker := eventlogger.NewWorker(evtlogger, cfg.Events.BufferSize)
	worker.Start()
	defer func() {
		worker.Shutdown()
		if dropped := worker.Dropped(); dropped > 0 {
			slog.Warn("events dropped while the buffer was full", "count", dropped)
		}
	}()

	userRepo := user.NewRepository(db)
	sessionRepo := session.NewRepository(db, cfg.Session.TTL)
	ledgers := ledger.NewService(ledger.NewRepository(db), worker, cfg.Cache.SummaryTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := scheduler.New(ctx, sessionRepo, ledgers)
	if err := jobs.Register(cfg.Schedule.SessionPurge, cfg.Schedule.IntegrityAudit); err != nil {
		printErrorAndExit("scheduling jobs", err)
	}
	jobs.Start()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.New(handler.Deps{
			Ledgers:      ledgers,
			Users:        userRepo,
			Sessions:     sessionRepo,
			Events:       evtlogger,
			Audit:        worker,
			LoginLimiter: middleware.NewRateLimiter(cfg.Login.RatePerMinute, 10*time.Minute),
			SecureCookie: cfg.Session.SecureCookie,
		}),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		jobs.Stop(shutdownCtx)
	}()

	slog.Info("server starting", "port", cfg.Port, "driver", cfg.Database.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		printErrorAndExit("server error", err)
	}
	<-stopped
	slog.Info("server stopped")
}

// setupLogger writes text logs to a terminal and JSON everywhere else.
func setupLogger() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
