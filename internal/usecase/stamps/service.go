package stamps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
	"canteen-rfid/internal/usecase/mealrules"
)

const defaultLatestTTL = 24 * time.Hour

// Service принимает отметки ридеров, классифицирует их и сохраняет.
type Service struct {
	readers   domain.ReaderRepo
	rules     domain.MealRuleRepo
	users     domain.UserRepo
	stamps    domain.StampRepo
	publisher domain.StampPublisher
	cache     domain.Cache
	loc       *time.Location
	latestTTL time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher включает публикацию событий об отметках.
func WithPublisher(p domain.StampPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithCache включает кэш последней отметки ридера.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.latestTTL = ttl
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService создаёт сервис. loc — часовой пояс столовой.
func NewService(readers domain.ReaderRepo, rules domain.MealRuleRepo, users domain.UserRepo, stamps domain.StampRepo, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		readers:   readers,
		rules:     rules,
		users:     users,
		stamps:    stamps,
		loc:       loc,
		latestTTL: defaultLatestTTL,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate находит активный ридер по сырому ключу API.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (domain.Reader, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return domain.Reader{}, domain.ErrUnauthorized
	}
	reader, err := s.readers.FindActiveReaderByKeyHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, domain.ErrReaderNotFound) {
			return domain.Reader{}, domain.ErrUnauthorized
		}
		return domain.Reader{}, fmt.Errorf("поиск ридера по ключу: %w", err)
	}
	return reader, nil
}

// AddStamp классифицирует и сохраняет отметку, пришедшую от ридера reader.
// Повторная отправка той же метки создаёт новую отметку.
func (s *Service) AddStamp(ctx context.Context, reader domain.Reader, req domain.StampRecord) (domain.Stamp, error) {
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		return domain.Stamp{}, fmt.Errorf("%w: пустой uid", domain.ErrInvalidStamp)
	}
	readerID := strings.TrimSpace(req.ReaderID)
	if readerID == "" {
		readerID = reader.ReaderID
	}

	utc := s.now().UTC()
	if req.TimestampUTC != nil && !req.TimestampUTC.IsZero() {
		utc = req.TimestampUTC.UTC()
	}
	local := utc.In(s.loc)

	engine, err := s.buildEngine(ctx)
	if err != nil {
		return domain.Stamp{}, err
	}
	mealType := engine.Resolve(local)

	stamp := domain.Stamp{
		ID:             uuid.New(),
		TimestampUTC:   utc,
		TimestampLocal: local,
		UIDRaw:         uid,
		ReaderID:       readerID,
		MealType:       mealType,
		CreatedAt:      s.now().UTC(),
	}
	user, err := s.users.FindUserByUID(ctx, uid)
	switch {
	case err == nil:
		id := user.ID
		stamp.UserID = &id
	case errors.Is(err, domain.ErrUserNotFound):
	default:
		return domain.Stamp{}, fmt.Errorf("поиск пользователя: %w", err)
	}

	saved, err := s.stamps.CreateStamp(ctx, stamp)
	if err != nil {
		return domain.Stamp{}, fmt.Errorf("сохранение отметки: %w", err)
	}
	metrics.StampsCreated.WithLabelValues(string(saved.MealType)).Inc()
	s.log.Info().
		Str("uid", saved.UIDRaw).
		Str("reader_id", saved.ReaderID).
		Str("meal_type", string(saved.MealType)).
		Time("local", saved.TimestampLocal).
		Msg("отметка сохранена")

	s.afterStamp(ctx, saved)
	return saved, nil
}

// Ping фиксирует контакт ридера. readerID в запросе необязателен,
// но если указан, должен совпадать с ридером ключа.
func (s *Service) Ping(ctx context.Context, reader domain.Reader, req domain.PingRequest) (domain.PingResponse, error) {
	if err := checkReaderID(reader, req.ReaderID); err != nil {
		return domain.PingResponse{}, err
	}
	now := s.now().UTC()
	if err := s.readers.TouchReader(ctx, reader.ReaderID, now); err != nil {
		return domain.PingResponse{}, fmt.Errorf("обновление ридера: %w", err)
	}
	metrics.ReaderPings.WithLabelValues(reader.ReaderID).Inc()
	return domain.PingResponse{Status: "ok", ServerTimeUTC: now}, nil
}

// LatestStamp возвращает последнюю отметку ридера для табло.
func (s *Service) LatestStamp(ctx context.Context, reader domain.Reader, readerID string) (domain.Stamp, error) {
	if err := checkReaderID(reader, readerID); err != nil {
		return domain.Stamp{}, err
	}
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, latestKey(reader.ReaderID))
		if err == nil {
			var stamp domain.Stamp
			if jsonErr := json.Unmarshal(raw, &stamp); jsonErr == nil {
				stamp.TimestampLocal = stamp.TimestampLocal.In(s.loc)
				return stamp, nil
			}
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			s.log.Warn().Err(err).Str("reader_id", reader.ReaderID).Msg("кэш последней отметки недоступен")
		}
	}
	return s.stamps.LatestStampForReader(ctx, reader.ReaderID)
}

// Recalculate заново классифицирует отметки в диапазоне [fromUTC, toUTC]
// по текущим активным правилам и возвращает число обработанных отметок.
func (s *Service) Recalculate(ctx context.Context, fromUTC, toUTC time.Time) (int, error) {
	if toUTC.Before(fromUTC) {
		return 0, fmt.Errorf("%w: конец диапазона раньше начала", domain.ErrInvalidStamp)
	}
	engine, err := s.buildEngine(ctx)
	if err != nil {
		return 0, err
	}
	list, err := s.stamps.ListStampsBetween(ctx, fromUTC.UTC(), toUTC.UTC())
	if err != nil {
		return 0, fmt.Errorf("выборка отметок: %w", err)
	}
	updates := make(map[uuid.UUID]domain.MealType, len(list))
	for _, stamp := range list {
		updates[stamp.ID] = engine.Resolve(stamp.TimestampLocal)
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if err := s.stamps.UpdateStampMealTypes(ctx, updates); err != nil {
		return 0, fmt.Errorf("обновление типов питания: %w", err)
	}
	metrics.StampsRecalculated.Add(float64(len(updates)))
	return len(updates), nil
}

func (s *Service) buildEngine(ctx context.Context) (*mealrules.Engine, error) {
	rules, err := s.rules.ListActiveMealRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка правил питания: %w", err)
	}
	return mealrules.NewEngine(rules), nil
}

func (s *Service) afterStamp(ctx context.Context, stamp domain.Stamp) {
	if s.cache != nil {
		if raw, err := json.Marshal(stamp); err == nil {
			if err := s.cache.Set(ctx, latestKey(stamp.ReaderID), raw, s.latestTTL); err != nil {
				s.log.Warn().Err(err).Str("reader_id", stamp.ReaderID).Msg("не удалось обновить кэш последней отметки")
			}
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishStamp(ctx, domain.NewStampEvent(stamp)); err != nil {
			metrics.StampEventErrors.Inc()
			s.log.Error().Err(err).Str("stamp_id", stamp.ID.String()).Msg("не удалось опубликовать событие отметки")
		}
	}
}

func checkReaderID(reader domain.Reader, requested string) error {
	requested = strings.TrimSpace(requested)
	if requested != "" && !strings.EqualFold(requested, reader.ReaderID) {
		return domain.ErrReaderMismatch
	}
	return nil
}

func latestKey(readerID string) string {
	return "reader:" + strings.ToLower(readerID) + ":latest_stamp"
}
