package delivery

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"canteen-rfid/internal/adapters/uidsource"
	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
	"canteen-rfid/internal/infra/queue"
)

const (
	defaultPingInterval  = 60 * time.Second
	defaultFlushInterval = 10 * time.Second
)

// Sender доставляет отметки и проверки связи на сервер.
type Sender interface {
	TrySend(ctx context.Context, rec domain.StampRecord) bool
	TryPing(ctx context.Context) bool
}

// Spool — локальная очередь неотправленных отметок.
type Spool interface {
	Append(rec domain.StampRecord) error
	Flush(ctx context.Context, send queue.SendFunc) (queue.FlushResult, error)
	Size() int64
	Records() (int, error)
}

// Config задаёт идентификатор ридера и интервалы циклов.
type Config struct {
	ReaderID      string
	PingInterval  time.Duration
	FlushInterval time.Duration
}

// Agent связывает источник меток, отправку и локальную очередь.
type Agent struct {
	source uidsource.Source
	sender Sender
	spool  Spool
	cfg    Config
	now    func() time.Time
	log    zerolog.Logger
}

// NewAgent создаёт агента ридера.
func NewAgent(source uidsource.Source, sender Sender, spool Spool, cfg Config, log zerolog.Logger) *Agent {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Agent{
		source: source,
		sender: sender,
		spool:  spool,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("component", "delivery").Logger(),
	}
}

// Run выгружает накопленную очередь и запускает циклы считывания,
// проверки связи и выгрузки. Возвращается после отмены ctx.
func (a *Agent) Run(ctx context.Context) {
	a.Flush(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.captureLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pingLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.flushLoop(ctx)
	}()
	wg.Wait()
}

func (a *Agent) captureLoop(ctx context.Context) {
	for {
		uid, err := a.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.log.Info().Msg("источник меток закрыт")
				return
			}
			if ctx.Err() != nil {
				return
			}
			a.log.Error().Err(err).Msg("ошибка чтения метки")
			return
		}
		uid = strings.TrimSpace(uid)
		if uid == "" {
			continue
		}
		ts := a.now().UTC()
		a.HandleScan(ctx, domain.StampRecord{
			UID:          uid,
			ReaderID:     a.cfg.ReaderID,
			TimestampUTC: &ts,
			Meta:         map[string]string{"source": a.source.Name()},
		})
	}
}

// HandleScan отправляет запись сразу, а при неудаче откладывает её в очередь.
// Успешная отправка запускает выгрузку ранее отложенных записей.
func (a *Agent) HandleScan(ctx context.Context, rec domain.StampRecord) {
	if a.sender.TrySend(ctx, rec) {
		a.log.Info().Str("uid", rec.UID).Str("reader_id", rec.ReaderID).Msg("отметка отправлена")
		a.Flush(ctx)
		return
	}
	if err := a.spool.Append(rec); err != nil {
		a.log.Error().Err(err).Str("uid", rec.UID).Msg("не удалось записать отметку в очередь")
		return
	}
	a.log.Warn().Str("uid", rec.UID).Msg("сервер недоступен, отметка отложена в очередь")
	a.updateGauge()
}

// Flush выгружает очередь. Параллельный вызов пропускается.
func (a *Agent) Flush(ctx context.Context) {
	res, err := a.spool.Flush(ctx, a.sender.TrySend)
	switch {
	case err != nil:
		metrics.SpoolFlushes.WithLabelValues("error").Inc()
		a.log.Error().Err(err).Msg("ошибка выгрузки очереди")
	case res.Skipped:
		metrics.SpoolFlushes.WithLabelValues("skipped").Inc()
		return
	default:
		metrics.SpoolFlushes.WithLabelValues("ok").Inc()
		if res.Sent > 0 {
			a.log.Info().Int("sent", res.Sent).Int("remaining", res.Remaining).Msg("очередь выгружена")
		}
		if res.Malformed > 0 {
			a.log.Warn().Int("malformed", res.Malformed).Msg("в очереди есть нечитаемые строки")
		}
	}
	a.updateGauge()
}

func (a *Agent) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.sender.TryPing(ctx) {
				a.Flush(ctx)
			}
		}
	}
}

func (a *Agent) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.spool.Size() > 0 {
				a.Flush(ctx)
			}
		}
	}
}

func (a *Agent) updateGauge() {
	n, err := a.spool.Records()
	if err != nil {
		return
	}
	metrics.SpoolRecords.Set(float64(n))
}
