package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"designqueue/internal/api"
	"designqueue/internal/config"
	"designqueue/internal/notify"
	"designqueue/internal/queue"
	"designqueue/internal/schedule"
	"designqueue/internal/scheduler"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML config file")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath  = flag.String("db", "", "SQLite DB path (overrides config)")
		debug   = flag.Bool("debug", false, "expose pprof handlers")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = *dbPath
	}
	setupLogging(cfg.Log)

	repo, err := openRepo(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage")
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbound delivery
	var deliverer notify.Deliverer = notify.Log{}
	if cfg.Notifications.WebhookURL != "" {
		deliverer = notify.NewWebhook(cfg.Notifications.WebhookURL, cfg.NotificationTimeout())
	}
	dispatcher := notify.NewDispatcher(deliverer, notify.Config{
		Workers:    cfg.Notifications.Workers,
		QueueSize:  cfg.Notifications.QueueSize,
		RatePerSec: cfg.Notifications.RatePerSec,
		RetryMax:   cfg.Notifications.RetryMax,
	})
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(ctx)
	}()

	engine := schedule.NewEngine(
		schedule.WithDefaultEstimatedDays(cfg.Engine.DefaultEstimatedDays),
		schedule.WithSameDayHandoff(cfg.Engine.SameDayHandoff),
	)
	svc := scheduler.NewService(repo, engine, scheduler.Options{
		DefaultDesigner: cfg.DefaultDesigner,
		Rollover:        cfg.Rollover,
		Notifier:        dispatcher,
	})
	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start schedule service")
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServerWithDebug(svc, *debug)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("storage", cfg.Storage.Driver).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
	svc.Stop()
	cancel()
	<-dispatched
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Console {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func openRepo(cfg config.Config) (queue.Repository, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("using in-memory storage, schedule is lost on exit")
		return queue.NewMemoryRepo(cfg.Notifications.InboxSize), nil
	}
	db, err := queue.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return queue.NewSQLiteRepo(db, cfg.Notifications.InboxSize), nil
}
