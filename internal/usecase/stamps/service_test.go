package stamps

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"canteen-rfid/internal/domain"
)

type stubRepo struct {
	mu        sync.Mutex
	readers   []domain.Reader
	rules     []domain.MealRule
	users     []domain.User
	stamps    []domain.Stamp
	touched   map[string]time.Time
	rulesErr  error
	createErr error
}

func (s *stubRepo) FindActiveReaderByKeyHash(_ context.Context, hash string) (domain.Reader, error) {
	for _, r := range s.readers {
		if r.APIKeyHash == hash && r.IsActive {
			return r, nil
		}
	}
	return domain.Reader{}, domain.ErrReaderNotFound
}
func (s *stubRepo) GetReader(_ context.Context, id string) (domain.Reader, error) {
	for _, r := range s.readers {
		if r.ReaderID == id {
			return r, nil
		}
	}
	return domain.Reader{}, domain.ErrReaderNotFound
}
func (s *stubRepo) ListReaders(context.Context) ([]domain.Reader, error) { return s.readers, nil }
func (s *stubRepo) CreateReader(_ context.Context, r domain.Reader) (domain.Reader, error) {
	s.readers = append(s.readers, r)
	return r, nil
}
func (s *stubRepo) UpdateReaderKeyHash(context.Context, string, string) error { return nil }
func (s *stubRepo) TouchReader(_ context.Context, id string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touched == nil {
		s.touched = map[string]time.Time{}
	}
	s.touched[id] = seen
	return nil
}
func (s *stubRepo) ListActiveMealRules(context.Context) ([]domain.MealRule, error) {
	return s.rules, s.rulesErr
}
func (s *stubRepo) CountMealRules(context.Context) (int, error) { return len(s.rules), nil }
func (s *stubRepo) CreateMealRule(_ context.Context, r domain.MealRule) (domain.MealRule, error) {
	s.rules = append(s.rules, r)
	return r, nil
}
func (s *stubRepo) FindUserByUID(_ context.Context, uid string) (domain.User, error) {
	for _, u := range s.users {
		if u.UID == uid {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}
func (s *stubRepo) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	s.users = append(s.users, u)
	return u, nil
}
func (s *stubRepo) CreateStamp(ctx context.Context, st domain.Stamp) (domain.Stamp, error) {
	if s.createErr != nil {
		return domain.Stamp{}, s.createErr
	}
	s.stamps = append(s.stamps, st)
	_ = s.TouchReader(ctx, st.ReaderID, st.CreatedAt)
	return st, nil
}
func (s *stubRepo) LatestStampForReader(_ context.Context, id string) (domain.Stamp, error) {
	for i := len(s.stamps) - 1; i >= 0; i-- {
		if s.stamps[i].ReaderID == id {
			return s.stamps[i], nil
		}
	}
	return domain.Stamp{}, domain.ErrStampNotFound
}
func (s *stubRepo) ListStampsBetween(_ context.Context, from, to time.Time) ([]domain.Stamp, error) {
	var out []domain.Stamp
	for _, st := range s.stamps {
		if !st.TimestampUTC.Before(from) && !st.TimestampUTC.After(to) {
			out = append(out, st)
		}
	}
	return out, nil
}
func (s *stubRepo) UpdateStampMealTypes(_ context.Context, updates map[uuid.UUID]domain.MealType) error {
	for i := range s.stamps {
		if mt, ok := updates[s.stamps[i].ID]; ok {
			s.stamps[i].MealType = mt
		}
	}
	return nil
}

type memoryCache struct {
	data map[string][]byte
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

type recordingPublisher struct {
	events []domain.StampEvent
	err    error
}

func (p *recordingPublisher) PublishStamp(_ context.Context, ev domain.StampEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

var berlin = mustLocation("Europe/Berlin")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 60*60)
	}
	return loc
}

func newRepo() *stubRepo {
	return &stubRepo{
		readers: []domain.Reader{{ReaderID: "R1", APIKeyHash: HashAPIKey("secret"), IsActive: true}},
		rules: []domain.MealRule{
			{Name: "Завтрак", MealType: domain.MealBreakfast, StartTimeLocal: domain.NewTimeOfDay(7, 0, 0), EndTimeLocal: domain.NewTimeOfDay(10, 0, 0), DaysOfWeekMask: domain.AllDays, Priority: 10, IsActive: true},
			{Name: "Обед", MealType: domain.MealLunch, StartTimeLocal: domain.NewTimeOfDay(10, 0, 0), EndTimeLocal: domain.NewTimeOfDay(15, 0, 0), DaysOfWeekMask: domain.AllDays, Priority: 9, IsActive: true},
		},
	}
}

func newService(repo *stubRepo, opts ...Option) *Service {
	return NewService(repo, repo, repo, repo, berlin, opts...)
}

func TestAuthenticate(t *testing.T) {
	repo := newRepo()
	repo.readers = append(repo.readers, domain.Reader{ReaderID: "OFF", APIKeyHash: HashAPIKey("old"), IsActive: false})
	svc := newService(repo)

	reader, err := svc.Authenticate(context.Background(), "secret")
	require.NoError(t, err)
	require.Equal(t, "R1", reader.ReaderID)

	for _, key := range []string{"", "  ", "wrong", "old"} {
		_, err := svc.Authenticate(context.Background(), key)
		require.ErrorIs(t, err, domain.ErrUnauthorized, key)
	}
}

func TestAddStampClassifiesInLocalTime(t *testing.T) {
	repo := newRepo()
	svc := newService(repo)
	reader := repo.readers[0]

	// 11:30 UTC зимой — 12:30 в Берлине
	ts := time.Date(2024, 1, 2, 11, 30, 0, 0, time.UTC)
	stamp, err := svc.AddStamp(context.Background(), reader, domain.StampRecord{UID: " ABC123 ", ReaderID: "R1", TimestampUTC: &ts})
	require.NoError(t, err)

	require.Equal(t, "ABC123", stamp.UIDRaw)
	require.Equal(t, domain.MealLunch, stamp.MealType)
	require.Equal(t, ts, stamp.TimestampUTC)
	require.Equal(t, 12, stamp.TimestampLocal.Hour())
	require.Nil(t, stamp.UserID)
	require.Len(t, repo.stamps, 1)
	require.Contains(t, repo.touched, "R1")
}

func TestAddStampDefaultsTimestampAndReader(t *testing.T) {
	repo := newRepo()
	fixed := time.Date(2024, 1, 2, 6, 15, 0, 0, time.UTC) // 07:15 в Берлине
	svc := newService(repo, WithClock(func() time.Time { return fixed }))

	stamp, err := svc.AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "X"})
	require.NoError(t, err)
	require.Equal(t, "R1", stamp.ReaderID)
	require.Equal(t, fixed, stamp.TimestampUTC)
	require.Equal(t, domain.MealBreakfast, stamp.MealType)
}

func TestAddStampUnknownWhenNoRuleMatches(t *testing.T) {
	repo := newRepo()
	svc := newService(repo)
	ts := time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC)

	stamp, err := svc.AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "X", TimestampUTC: &ts})
	require.NoError(t, err)
	require.Equal(t, domain.MealUnknown, stamp.MealType)
}

func TestAddStampLinksKnownUser(t *testing.T) {
	repo := newRepo()
	userID := uuid.New()
	repo.users = []domain.User{{ID: userID, FirstName: "Анна", LastName: "Шмидт", UID: "CARD1"}}
	svc := newService(repo)

	stamp, err := svc.AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "CARD1"})
	require.NoError(t, err)
	require.NotNil(t, stamp.UserID)
	require.Equal(t, userID, *stamp.UserID)
}

func TestAddStampRejectsEmptyUID(t *testing.T) {
	repo := newRepo()
	_, err := newService(repo).AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidStamp)
	require.Empty(t, repo.stamps)
}

func TestAddStampNoDeduplication(t *testing.T) {
	repo := newRepo()
	svc := newService(repo)
	ts := time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC)
	rec := domain.StampRecord{UID: "A", TimestampUTC: &ts}

	first, err := svc.AddStamp(context.Background(), repo.readers[0], rec)
	require.NoError(t, err)
	second, err := svc.AddStamp(context.Background(), repo.readers[0], rec)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, repo.stamps, 2)
}

func TestAddStampPropagatesStoreErrors(t *testing.T) {
	repo := newRepo()
	repo.rulesErr = errors.New("db down")
	_, err := newService(repo).AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "A"})
	require.Error(t, err)

	repo = newRepo()
	repo.createErr = errors.New("insert failed")
	_, err = newService(repo).AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "A"})
	require.Error(t, err)
}

func TestAddStampPublishesAndCaches(t *testing.T) {
	repo := newRepo()
	cache := &memoryCache{}
	pub := &recordingPublisher{err: errors.New("broker offline")}
	svc := newService(repo, WithCache(cache, time.Minute), WithPublisher(pub))

	stamp, err := svc.AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "A"})
	require.NoError(t, err, "ошибка публикации не должна ломать приём отметки")
	require.Len(t, pub.events, 1)
	require.Equal(t, stamp.ID.String(), pub.events[0].StampID)

	repo.stamps = nil
	latest, err := svc.LatestStamp(context.Background(), repo.readers[0], "")
	require.NoError(t, err)
	require.Equal(t, stamp.ID, latest.ID)
}

func TestLatestStampFallsBackToStore(t *testing.T) {
	repo := newRepo()
	svc := newService(repo)

	_, err := svc.LatestStamp(context.Background(), repo.readers[0], "r1")
	require.ErrorIs(t, err, domain.ErrStampNotFound)

	saved, err := svc.AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "A"})
	require.NoError(t, err)
	latest, err := svc.LatestStamp(context.Background(), repo.readers[0], "R1")
	require.NoError(t, err)
	require.Equal(t, saved.ID, latest.ID)

	_, err = svc.LatestStamp(context.Background(), repo.readers[0], "R2")
	require.ErrorIs(t, err, domain.ErrReaderMismatch)
}

func TestPing(t *testing.T) {
	repo := newRepo()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(repo, WithClock(func() time.Time { return fixed }))

	resp, err := svc.Ping(context.Background(), repo.readers[0], domain.PingRequest{ReaderID: "r1"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, fixed, resp.ServerTimeUTC)
	require.Equal(t, fixed, repo.touched["R1"])

	_, err = svc.Ping(context.Background(), repo.readers[0], domain.PingRequest{ReaderID: "R9"})
	require.ErrorIs(t, err, domain.ErrReaderMismatch)
}

func TestRecalculate(t *testing.T) {
	repo := newRepo()
	svc := newService(repo)
	ts := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC) // 09:00 локально
	stamp, err := svc.AddStamp(context.Background(), repo.readers[0], domain.StampRecord{UID: "A", TimestampUTC: &ts})
	require.NoError(t, err)
	require.Equal(t, domain.MealBreakfast, stamp.MealType)

	repo.rules = append(repo.rules, domain.MealRule{
		Name: "Перекус", MealType: domain.MealSnack,
		StartTimeLocal: domain.NewTimeOfDay(8, 30, 0), EndTimeLocal: domain.NewTimeOfDay(9, 30, 0),
		DaysOfWeekMask: domain.AllDays, Priority: 50, IsActive: true,
	})
	n, err := svc.Recalculate(context.Background(), ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, domain.MealSnack, repo.stamps[0].MealType)
	require.Equal(t, stamp.ID, repo.stamps[0].ID)

	n, err = svc.Recalculate(context.Background(), ts.Add(time.Hour), ts.Add(2*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = svc.Recalculate(context.Background(), ts, ts.Add(-time.Second))
	require.Error(t, err)
}
