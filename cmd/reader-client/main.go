package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"canteen-rfid/internal/adapters/stampclient"
	"canteen-rfid/internal/adapters/uidsource"
	"canteen-rfid/internal/infra/config"
	"canteen-rfid/internal/infra/log"
	"canteen-rfid/internal/infra/metrics"
	"canteen-rfid/internal/infra/queue"
	"canteen-rfid/internal/usecase/delivery"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("reader-client", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "readerclientsettings.json", "путь к файлу настроек ридера")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, created, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	logger := log.NewConsoleLogger(cfg.AppEnv).With().Str("service", "reader-client").Str("reader_id", cfg.ReaderID).Logger()
	if created {
		logger.Warn().Str("path", configPath).Msg("создан файл настроек по умолчанию, проверьте serverUrl, apiKey и readerId")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", configPath, err)
	}

	metrics.MustRegisterClient(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	}

	spool, err := queue.NewFileSpool(cfg.QueueDir, logger)
	if err != nil {
		return err
	}
	client, err := stampclient.New(cfg.ServerURL, cfg.APIKey, cfg.ReaderID,
		stampclient.WithTimeout(cfg.RequestTimeout()),
		stampclient.WithLogger(logger.With().Str("component", "stampclient").Logger()),
	)
	if err != nil {
		return err
	}

	source := uidsource.Select(cfg.UseGlobalKeyboardHook, cfg.Terminator, os.Stdin, logger)
	defer source.Close()

	agent := delivery.NewAgent(source, client, spool, delivery.Config{
		ReaderID:      cfg.ReaderID,
		PingInterval:  cfg.PingInterval(),
		FlushInterval: cfg.FlushInterval(),
	}, logger)

	logger.Info().
		Str("server", cfg.ServerURL).
		Str("source", source.Name()).
		Str("queue", spool.Path()).
		Msg("готов к считыванию меток")
	agent.Run(ctx)
	logger.Info().Msg("остановка клиента ридера")
	return nil
}
