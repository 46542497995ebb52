package readers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"canteen-rfid/internal/adapters/repo"
	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/db"
	"canteen-rfid/internal/usecase/stamps"
)

func newStore(t *testing.T) *repo.SQLite {
	t.Helper()
	conn, err := db.OpenSQLite(db.MemorySQLite)
	require.NoError(t, err)
	store := repo.NewSQLite(conn, nil)
	require.NoError(t, store.InitSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterIssuesUsableKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	reader, key, err := Register(ctx, store, domain.Reader{ReaderID: " R1 ", Name: "Касса"})
	require.NoError(t, err)
	require.Equal(t, "R1", reader.ReaderID)
	require.Len(t, key, 64)
	require.Equal(t, stamps.HashAPIKey(key), reader.APIKeyHash)

	svc := stamps.NewService(store, store, store, store, nil)
	found, err := svc.Authenticate(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "R1", found.ReaderID)

	_, _, err = Register(ctx, store, domain.Reader{ReaderID: "R1"})
	require.Error(t, err)
	_, _, err = Register(ctx, store, domain.Reader{ReaderID: " "})
	require.Error(t, err)
}

func TestRotateKeyInvalidatesOldKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, oldKey, err := Register(ctx, store, domain.Reader{ReaderID: "R1"})
	require.NoError(t, err)

	newKey, err := RotateKey(ctx, store, "R1")
	require.NoError(t, err)
	require.NotEqual(t, oldKey, newKey)

	svc := stamps.NewService(store, store, store, store, nil)
	_, err = svc.Authenticate(ctx, oldKey)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, newKey)
	require.NoError(t, err)

	_, err = RotateKey(ctx, store, "NOPE")
	require.ErrorIs(t, err, domain.ErrReaderNotFound)
}
