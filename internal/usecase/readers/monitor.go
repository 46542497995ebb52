package readers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
)

// Monitor периодически оценивает, какие ридеры на связи.
type Monitor struct {
	repo      domain.ReaderRepo
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
	state     map[string]bool
}

// NewMonitor создаёт монитор. Ридер считается на связи, если последний
// контакт был не раньше threshold назад.
func NewMonitor(repo domain.ReaderRepo, threshold, interval time.Duration, log zerolog.Logger) *Monitor {
	if threshold <= 0 {
		threshold = 30 * time.Second
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		repo:      repo,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
		log:       log.With().Str("component", "reader_monitor").Logger(),
		state:     make(map[string]bool),
	}
}

// Run проверяет ридеры до отмены ctx.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Check(ctx); err != nil && ctx.Err() == nil {
			m.log.Error().Err(err).Msg("не удалось получить список ридеров")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check обновляет метрику reader_online и логирует смену состояния.
// Возвращает ошибку чтения ридеров.
func (m *Monitor) Check(ctx context.Context) error {
	list, err := m.repo.ListReaders(ctx)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	for _, r := range list {
		online := r.IsActive && r.IsOnline(now, m.threshold)
		value := 0.0
		if online {
			value = 1
		}
		metrics.ReaderOnline.WithLabelValues(r.ReaderID).Set(value)

		prev, seen := m.state[r.ReaderID]
		m.state[r.ReaderID] = online
		if seen && prev == online {
			continue
		}
		ev := m.log.Info()
		if !online && seen {
			ev = m.log.Warn()
		}
		if r.LastPingUTC != nil {
			ev = ev.Time("last_seen", *r.LastPingUTC)
		}
		ev.Str("reader_id", r.ReaderID).Bool("online", online).Msg("состояние ридера")
	}
	return nil
}

// Online возвращает последнее известное состояние ридера.
func (m *Monitor) Online(readerID string) bool {
	return m.state[readerID]
}
