package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ParcelScope/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f := defaultWorkerFactories()

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		panic(err)
	}
	defer closeFn()

	resolver, closeResolver := f.newResolver(cfg)
	defer closeResolver()

	r := buildRefresher(cfg, repo, resolver, f.newGeocoder(cfg), f.newProducer(cfg), f.newRateLimiter(cfg))

	// Служебный HTTP (stats/trigger/docs) живёт рядом с циклом воркера.
	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.ParcelScope.WorkerHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			refresher:   r,
			cfg:         cfg,
		})
		if err != nil && err != context.Canceled {
			slog.Error("worker http server", "error", err.Error())
		}
	}()

	if err := r.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}
