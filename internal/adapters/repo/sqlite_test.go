package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/db"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	conn, err := db.OpenSQLite(db.MemorySQLite)
	require.NoError(t, err)
	loc := time.FixedZone("CET", 3600)
	store := NewSQLite(conn, loc)
	require.NoError(t, store.InitSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteReaders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.CreateReader(ctx, domain.Reader{ReaderID: "R-1", Name: "Вход", APIKeyHash: "HASH1", IsActive: true})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	_, err = store.CreateReader(ctx, domain.Reader{ReaderID: "R-2", APIKeyHash: "HASH2", IsActive: false})
	require.NoError(t, err)

	got, err := store.FindActiveReaderByKeyHash(ctx, "HASH1")
	require.NoError(t, err)
	require.Equal(t, "R-1", got.ReaderID)
	require.Equal(t, "Вход", got.Name)
	require.Nil(t, got.LastPingUTC)

	_, err = store.FindActiveReaderByKeyHash(ctx, "HASH2")
	require.ErrorIs(t, err, domain.ErrReaderNotFound)

	seen := time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchReader(ctx, "R-1", seen))
	got, err = store.GetReader(ctx, "R-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastPingUTC)
	require.True(t, seen.Equal(*got.LastPingUTC))

	require.NoError(t, store.UpdateReaderKeyHash(ctx, "R-1", "HASH3"))
	_, err = store.FindActiveReaderByKeyHash(ctx, "HASH1")
	require.ErrorIs(t, err, domain.ErrReaderNotFound)
	require.ErrorIs(t, store.UpdateReaderKeyHash(ctx, "NOPE", "X"), domain.ErrReaderNotFound)

	list, err := store.ListReaders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSQLiteMealRulesKeepCreationOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n, err := store.CountMealRules(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	rules := []domain.MealRule{
		{Name: "b", MealType: domain.MealBreakfast, StartTimeLocal: domain.NewTimeOfDay(7, 0, 0), EndTimeLocal: domain.NewTimeOfDay(10, 0, 0), DaysOfWeekMask: domain.AllDays, Priority: 1, IsActive: true},
		{Name: "off", MealType: domain.MealSnack, StartTimeLocal: domain.NewTimeOfDay(0, 0, 0), EndTimeLocal: domain.NewTimeOfDay(23, 59, 59), DaysOfWeekMask: domain.AllDays, IsActive: false},
		{Name: "n", MealType: domain.MealDinner, StartTimeLocal: domain.NewTimeOfDay(22, 0, 0), EndTimeLocal: domain.NewTimeOfDay(2, 0, 0), DaysOfWeekMask: domain.MaskOf(time.Friday), Priority: 1, IsActive: true},
	}
	for _, r := range rules {
		_, err := store.CreateMealRule(ctx, r)
		require.NoError(t, err)
	}

	active, err := store.ListActiveMealRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "b", active[0].Name)
	require.Equal(t, "n", active[1].Name)
	require.Equal(t, domain.NewTimeOfDay(22, 0, 0), active[1].StartTimeLocal)
	require.Equal(t, domain.NewTimeOfDay(2, 0, 0), active[1].EndTimeLocal)
	require.Equal(t, domain.MaskOf(time.Friday), active[1].DaysOfWeekMask)

	n, err = store.CountMealRules(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestSQLiteStampsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateReader(ctx, domain.Reader{ReaderID: "R-1", APIKeyHash: "H", IsActive: true})
	require.NoError(t, err)
	user, err := store.CreateUser(ctx, domain.User{FirstName: "Анна", LastName: "Иванова", PersonnelNo: "42", UID: "ABC123", IsActive: true})
	require.NoError(t, err)

	found, err := store.FindUserByUID(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)
	_, err = store.FindUserByUID(ctx, "NOPE")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = store.LatestStampForReader(ctx, "R-1")
	require.ErrorIs(t, err, domain.ErrStampNotFound)

	utc := time.Date(2025, 3, 3, 11, 30, 0, 0, time.UTC)
	first := domain.Stamp{
		ID:             uuid.New(),
		TimestampUTC:   utc,
		TimestampLocal: utc.In(store.loc),
		UIDRaw:         "ABC123",
		ReaderID:       "R-1",
		MealType:       domain.MealLunch,
		UserID:         &user.ID,
		CreatedAt:      utc.Add(time.Second),
	}
	_, err = store.CreateStamp(ctx, first)
	require.NoError(t, err)

	second := first
	second.ID = uuid.New()
	second.UserID = nil
	second.UIDRaw = "ZZZ"
	second.CreatedAt = utc.Add(2 * time.Second)
	_, err = store.CreateStamp(ctx, second)
	require.NoError(t, err)

	latest, err := store.LatestStampForReader(ctx, "R-1")
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Nil(t, latest.UserID)
	require.Equal(t, 12, latest.TimestampLocal.Hour())
	require.Equal(t, store.loc, latest.TimestampLocal.Location())

	reader, err := store.GetReader(ctx, "R-1")
	require.NoError(t, err)
	require.NotNil(t, reader.LastPingUTC)
	require.True(t, second.CreatedAt.Equal(*reader.LastPingUTC))

	list, err := store.ListStampsBetween(ctx, utc.Add(-time.Minute), utc.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].UserID)

	empty, err := store.ListStampsBetween(ctx, utc.Add(time.Hour), utc.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, store.UpdateStampMealTypes(ctx, map[uuid.UUID]domain.MealType{
		first.ID:  domain.MealSnack,
		second.ID: domain.MealUnknown,
	}))
	list, err = store.ListStampsBetween(ctx, utc.Add(-time.Minute), utc.Add(time.Minute))
	require.NoError(t, err)
	types := map[uuid.UUID]domain.MealType{}
	for _, st := range list {
		types[st.ID] = st.MealType
	}
	require.Equal(t, domain.MealSnack, types[first.ID])
	require.Equal(t, domain.MealUnknown, types[second.ID])
}
