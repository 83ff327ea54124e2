package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vityasyyy/dalam-kemasan/internal/app"
	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/queue"
	"github.com/vityasyyy/dalam-kemasan/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.LogError(err, "load config", nil)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	if cfg.Backend == config.BackendMemory {
		logger.Log.Error().Msg("worker needs a persistent backend, memory has nothing to sweep")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		logger.LogError(err, "open repository", map[string]interface{}{"backend": cfg.Backend})
		os.Exit(1)
	}
	if closeRepo != nil {
		defer closeRepo()
	}

	redis := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	// Sweeps rewrite the whole snapshot, so one at a time.
	server := asynq.NewServer(redis, asynq.Config{Concurrency: 1})
	scheduler := asynq.NewScheduler(redis, nil)

	task, err := queue.NewSweepTask(queue.SweepPayload{})
	if err != nil {
		logger.LogError(err, "build sweep task", nil)
		os.Exit(1)
	}
	entryID, err := scheduler.Register(cfg.Retention.SweepCron, task)
	if err != nil {
		logger.LogError(err, "register sweep schedule", map[string]interface{}{"cron": cfg.Retention.SweepCron})
		os.Exit(1)
	}
	logger.Log.Info().Str("entry", entryID).Str("cron", cfg.Retention.SweepCron).Msg("sweep scheduled")

	if err := scheduler.Start(); err != nil {
		logger.LogError(err, "start scheduler", nil)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	processor := worker.NewProcessor(repo, nil)
	if err := server.Start(processor.Handler()); err != nil {
		logger.LogError(err, "start worker", nil)
		os.Exit(1)
	}
	<-ctx.Done()
	server.Shutdown()
	logger.Log.Info().Msg("worker stopped")
}
