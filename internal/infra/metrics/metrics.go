package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	StampsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stamps_created_total",
		Help: "Сохранённые отметки по типу питания",
	}, []string{"meal_type"})

	AuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stamp_auth_failures_total",
		Help: "Отклонённые запросы с неверным ключом API",
	}, []string{"endpoint"})

	ReaderPings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_pings_total",
		Help: "Принятые проверки связи по ридерам",
	}, []string{"reader_id"})

	ReaderOnline = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reader_online",
		Help: "1, если ридер выходил на связь в пределах порога",
	}, []string{"reader_id"})

	StampsRecalculated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stamps_recalculated_total",
		Help: "Отметки с пересчитанным типом питания",
	})

	StampEventErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stamp_event_publish_errors_total",
		Help: "Ошибки публикации событий об отметках",
	})

	ClientDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_client_deliveries_total",
		Help: "Результаты отправки отметок с ридера",
	}, []string{"result"})

	ClientRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reader_client_rejected_total",
		Help: "Ответы сервера 401/403 на запросы ридера",
	})

	SpoolRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reader_client_spool_records",
		Help: "Количество записей в локальной очереди",
	})

	SpoolFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_client_spool_flushes_total",
		Help: "Проходы выгрузки локальной очереди",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegisterServer регистрирует метрики сервера приёма отметок.
func MustRegisterServer(registerer prometheus.Registerer) {
	registerer.MustRegister(
		StampsCreated,
		AuthFailures,
		ReaderPings,
		ReaderOnline,
		StampsRecalculated,
		StampEventErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// MustRegisterClient регистрирует метрики клиента ридера.
func MustRegisterClient(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ClientDeliveries,
		ClientRejected,
		SpoolRecords,
		SpoolFlushes,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
