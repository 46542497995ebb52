package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReaderRepo хранит ридеры и их ключи.
type ReaderRepo interface {
	FindActiveReaderByKeyHash(ctx context.Context, keyHash string) (Reader, error)
	GetReader(ctx context.Context, readerID string) (Reader, error)
	ListReaders(ctx context.Context) ([]Reader, error)
	CreateReader(ctx context.Context, reader Reader) (Reader, error)
	UpdateReaderKeyHash(ctx context.Context, readerID, keyHash string) error
	TouchReader(ctx context.Context, readerID string, seen time.Time) error
}

// MealRuleRepo отдаёт правила классификации.
type MealRuleRepo interface {
	ListActiveMealRules(ctx context.Context) ([]MealRule, error)
	CountMealRules(ctx context.Context) (int, error)
	CreateMealRule(ctx context.Context, rule MealRule) (MealRule, error)
}

// UserRepo ищет владельцев меток.
type UserRepo interface {
	FindUserByUID(ctx context.Context, uid string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
}

// StampRepo сохраняет отметки.
type StampRepo interface {
	// CreateStamp сохраняет отметку и в той же транзакции обновляет время
	// последнего контакта ридера stamp.ReaderID.
	CreateStamp(ctx context.Context, stamp Stamp) (Stamp, error)
	LatestStampForReader(ctx context.Context, readerID string) (Stamp, error)
	ListStampsBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]Stamp, error)
	UpdateStampMealTypes(ctx context.Context, mealTypes map[uuid.UUID]MealType) error
}

// Store объединяет все репозитории одного хранилища.
type Store interface {
	ReaderRepo
	MealRuleRepo
	UserRepo
	StampRepo
	Close() error
}

// StampPublisher рассылает события о сохранённых отметках.
type StampPublisher interface {
	PublishStamp(ctx context.Context, event StampEvent) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
