package stampclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"canteen-rfid/internal/domain"
)

func TestTrySendPostsRecordWithKey(t *testing.T) {
	var got domain.StampRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/base/api/v1/stamps", r.URL.Path)
		require.Equal(t, "KEY", r.Header.Get(APIKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/base/", "KEY", "R1")
	require.NoError(t, err)

	ts := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	ok := c.TrySend(context.Background(), domain.StampRecord{UID: "ABC123", ReaderID: "R1", TimestampUTC: &ts})
	require.True(t, ok)
	require.Equal(t, "ABC123", got.UID)
	require.NotNil(t, got.TimestampUTC)
	require.True(t, ts.Equal(*got.TimestampUTC))
}

func TestTrySendFalseOnFailure(t *testing.T) {
	cases := map[string]int{
		"unauthorized": http.StatusUnauthorized,
		"server error": http.StatusInternalServerError,
		"bad request":  http.StatusBadRequest,
	}
	for name, status := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"nope"}`, status)
			}))
			defer srv.Close()

			c, err := New(srv.URL, "KEY", "R1")
			require.NoError(t, err)
			require.False(t, c.TrySend(context.Background(), domain.StampRecord{UID: "X"}))
		})
	}
}

func TestSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "KEY", "R1")
	require.NoError(t, err)
	require.ErrorIs(t, c.Send(context.Background(), domain.StampRecord{UID: "X"}), ErrRejected)
}

func TestTrySendFalseWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := New(addr, "KEY", "R1", WithTimeout(time.Second))
	require.NoError(t, err)
	require.False(t, c.TrySend(context.Background(), domain.StampRecord{UID: "X"}))
	require.False(t, c.TryPing(context.Background()))
}

func TestTrySendIgnoresCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "KEY", "R1")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, c.TrySend(ctx, domain.StampRecord{UID: "X"}))
}

func TestTryPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/readers/ping", r.URL.Path)
		var req domain.PingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "R1", req.ReaderID)
		_ = json.NewEncoder(w).Encode(domain.PingResponse{Status: "ok", ServerTimeUTC: time.Now().UTC()})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "KEY", "R1")
	require.NoError(t, err)
	require.True(t, c.TryPing(context.Background()))

	resp, err := c.Ping(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
}
