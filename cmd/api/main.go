package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"canteen-rfid/internal/adapters/httpapi"
	"canteen-rfid/internal/adapters/repo"
	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/cache"
	"canteen-rfid/internal/infra/config"
	httpinfra "canteen-rfid/internal/infra/http"
	"canteen-rfid/internal/infra/log"
	"canteen-rfid/internal/infra/metrics"
	"canteen-rfid/internal/infra/queue"
	"canteen-rfid/internal/usecase/mealrules"
	"canteen-rfid/internal/usecase/readers"
	"canteen-rfid/internal/usecase/stamps"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()

	metrics.MustRegisterServer(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := config.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("api: неизвестный часовой пояс")
	}

	store, err := repo.Open(ctx, cfg.DB.Driver, cfg.PGDSN, cfg.DB.SQLitePath, loc)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("api: нет подключения к БД")
	}
	defer store.Close()

	if cfg.DB.SeedDefaults {
		n, err := mealrules.SeedDefaults(ctx, store)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось создать правила по умолчанию")
		}
		if n > 0 {
			logger.Info().Int("rules", n).Msg("api: созданы правила питания по умолчанию")
		}
	}

	opts := []stamps.Option{stamps.WithLogger(logger.With().Str("component", "stamps").Logger())}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		opts = append(opts, stamps.WithCache(cache.NewRedis(redisClient), cfg.LatestStampTTL))
	}
	publisher, closePublisher, err := newPublisher(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Events.Backend).Msg("api: не удалось настроить публикацию событий")
	}
	defer closePublisher()
	if publisher != nil {
		opts = append(opts, stamps.WithPublisher(publisher))
	}
	svc := stamps.NewService(store, store, store, store, loc, opts...)

	monitor := readers.NewMonitor(store, cfg.Readers.OnlineThreshold, cfg.Readers.MonitorInterval, logger)
	go monitor.Run(ctx)

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	}

	server := httpinfra.NewServer(logger)
	httpapi.NewHandler(svc, logger).Register(server.Router)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func newPublisher(cfg config.AppConfig, redisClient *redis.Client) (domain.StampPublisher, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Events.Backend) {
	case "", "none":
		return nil, noop, nil
	case "redis":
		if redisClient == nil {
			return nil, noop, fmt.Errorf("REDIS_ADDR is required for redis events")
		}
		return queue.NewRedisStampPublisher(redisClient, cfg.Events.Queue), noop, nil
	case "rabbitmq":
		pub, err := queue.NewRabbitStampPublisher(cfg.RabbitMQURL, cfg.Events.Queue)
		if err != nil {
			return nil, noop, err
		}
		return pub, func() { _ = pub.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}
