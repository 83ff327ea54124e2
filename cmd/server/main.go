package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vityasyyy/dalam-kemasan/internal/api"
	"github.com/vityasyyy/dalam-kemasan/internal/app"
	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/processing"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := app.Open(ctx, cfg)
	if err != nil {
		logger.LogError(err, "open drive", map[string]interface{}{"backend": cfg.Backend})
		os.Exit(1)
	}
	defer d.Close()

	var persister *processing.Processor
	if d.Repo != nil {
		persister = processing.New(d.Store, d.Repo, 10*time.Second)
		persister.MarkSaved(d.Store.Revision())
		persister.Start(ctx)
	}
	d.Retention.Start(ctx)

	var opts []api.Option
	if cfg.Retention.Queue {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		opts = append(opts, api.WithQueue(client))
	}

	srv := api.New(cfg, d.Store, d.Engine, d.Retention, opts...)
	runErr := srv.Run(ctx)
	stop()
	if persister != nil {
		persister.Wait()
	}
	if runErr != nil {
		logger.LogError(runErr, "server stopped", nil)
		d.Close()
		os.Exit(1)
	}
	logger.Log.Info().Uint64("revision", d.Store.Revision()).Msg("shutdown complete")
}
