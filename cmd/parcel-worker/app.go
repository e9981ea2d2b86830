package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ParcelScope/config"
	"github.com/BearBump/ParcelScope/internal/broker/kafka"
	"github.com/BearBump/ParcelScope/internal/browser"
	"github.com/BearBump/ParcelScope/internal/cache/rediscache"
	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/carriers/catalog"
	"github.com/BearBump/ParcelScope/internal/geocoder"
	"github.com/BearBump/ParcelScope/internal/services/refresher"
	"github.com/BearBump/ParcelScope/internal/storage/pgshipment"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo refresher.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) refresher.Producer
	newRateLimiter func(cfg *config.Config) refresher.RateLimiter
	newResolver    func(cfg *config.Config) (resolver refresher.Resolver, closeFn func())
	newGeocoder    func(cfg *config.Config) refresher.Geocoder
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (refresher.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgshipment.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) refresher.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) refresher.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newResolver: func(cfg *config.Config) (refresher.Resolver, func()) {
			settle := time.Duration(cfg.ParcelScope.BrowserSettleMillis) * time.Millisecond
			renderer := browser.New(settle)

			reg := catalog.NewRegistry(catalog.Options{
				Credentials: carriers.StaticCredentials(cfg.ParcelScope.CarrierCredentials),
				Renderer:    renderer,
				EnableFake:  true,
			})
			timeout := time.Duration(cfg.ParcelScope.StrategyTimeoutSeconds) * time.Second
			return carriers.NewResolver(reg, timeout), renderer.Close
		},
		newGeocoder: func(cfg *config.Config) refresher.Geocoder {
			return geocoder.New(cfg.ParcelScope.GeocoderBaseURL, cfg.ParcelScope.GeocoderUserAgent)
		},
	}
}

func buildRefresher(cfg *config.Config, repo refresher.Repository, resolver refresher.Resolver,
	geo refresher.Geocoder, producer refresher.Producer, rl refresher.RateLimiter) *refresher.Refresher {

	topic := cfg.Kafka.ShipmentUpdatedTopicName
	if topic == "" {
		topic = "parcelscope.shipment.updated"
	}

	ps := cfg.ParcelScope
	pollInterval := time.Duration(ps.WorkerPollIntervalSeconds) * time.Second
	lease := time.Duration(ps.WorkerLeaseSeconds) * time.Second

	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }

	return refresher.New(repo, resolver, geo, producer, rl, topic).
		WithSettings(pollInterval, ps.WorkerBatchSize, ps.WorkerConcurrency, lease, int64(ps.WorkerRateLimitPerMinute)).
		WithCarrierRateLimits(ps.WorkerCarrierRateLimitsPerMinute).
		WithPlanner(refresher.PlannerConfig{
			OutForDeliveryDelay: sec(ps.WorkerNextCheckOutForDeliverySeconds),
			InTransitMinDelay:   sec(ps.WorkerNextCheckInTransitMinSeconds),
			InTransitMaxDelay:   sec(ps.WorkerNextCheckInTransitMaxSeconds),
			ExceptionDelay:      sec(ps.WorkerNextCheckExceptionSeconds),
			PendingDelay:        sec(ps.WorkerNextCheckPendingSeconds),
			UnknownDelay:        sec(ps.WorkerNextCheckUnknownSeconds),
			Backoff1:            sec(ps.WorkerBackoff1Seconds),
			Backoff2:            sec(ps.WorkerBackoff2Seconds),
			Backoff3:            sec(ps.WorkerBackoff3Seconds),
			Backoff4:            sec(ps.WorkerBackoff4Seconds),
			AuthRequiredDelay:   sec(ps.WorkerAuthRequiredParkSeconds),
		})
}

func RunParcelWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	resolver, closeResolver := f.newResolver(cfg)
	if closeResolver != nil {
		defer closeResolver()
	}

	r := buildRefresher(cfg, repo, resolver, f.newGeocoder(cfg), f.newProducer(cfg), f.newRateLimiter(cfg))

	return r.Run(ctx)
}
