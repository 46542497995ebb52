package readers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
)

type listRepo struct {
	domain.ReaderRepo
	readers []domain.Reader
	err     error
}

func (l *listRepo) ListReaders(context.Context) ([]domain.Reader, error) {
	return l.readers, l.err
}

func TestMonitorTracksLiveness(t *testing.T) {
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Second)
	stale := now.Add(-2 * time.Minute)

	repo := &listRepo{readers: []domain.Reader{
		{ReaderID: "M-ON", IsActive: true, LastPingUTC: &recent},
		{ReaderID: "M-STALE", IsActive: true, LastPingUTC: &stale},
		{ReaderID: "M-NEVER", IsActive: true},
		{ReaderID: "M-OFF", IsActive: false, LastPingUTC: &recent},
	}}
	m := NewMonitor(repo, 30*time.Second, time.Second, zerolog.Nop())
	m.now = func() time.Time { return now }

	require.NoError(t, m.Check(context.Background()))
	require.True(t, m.Online("M-ON"))
	require.False(t, m.Online("M-STALE"))
	require.False(t, m.Online("M-NEVER"))
	require.False(t, m.Online("M-OFF"))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReaderOnline.WithLabelValues("M-ON")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.ReaderOnline.WithLabelValues("M-STALE")))

	m.now = func() time.Time { return now.Add(time.Minute) }
	require.NoError(t, m.Check(context.Background()))
	require.False(t, m.Online("M-ON"))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.ReaderOnline.WithLabelValues("M-ON")))
}

func TestMonitorPropagatesListError(t *testing.T) {
	m := NewMonitor(&listRepo{err: errors.New("db down")}, 0, 0, zerolog.Nop())
	require.Error(t, m.Check(context.Background()))
}
