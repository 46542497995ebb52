package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

var _ domain.Store = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД. loc — часовой пояс столбца timestamp_local.
func NewPostgres(pool *pgxpool.Pool, loc *time.Location) *Postgres {
	if loc == nil {
		loc = time.UTC
	}
	return &Postgres{pool: pool, loc: loc}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// InitSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) InitSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close закрывает пул.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

const pgReaderColumns = `id, reader_id, COALESCE(name, ''), COALESCE(location, ''), api_key_hash, is_active, last_ping_utc, created_at_utc`

func scanPgReader(row pgx.Row) (domain.Reader, error) {
	var (
		r        domain.Reader
		lastPing pgtype.Timestamptz
	)
	if err := row.Scan(&r.ID, &r.ReaderID, &r.Name, &r.Location, &r.APIKeyHash, &r.IsActive, &lastPing, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reader{}, domain.ErrReaderNotFound
		}
		return domain.Reader{}, err
	}
	if lastPing.Valid {
		ts := lastPing.Time.UTC()
		r.LastPingUTC = &ts
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// FindActiveReaderByKeyHash реализует domain.ReaderRepo.
func (p *Postgres) FindActiveReaderByKeyHash(ctx context.Context, keyHash string) (domain.Reader, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	reader, err := scanPgReader(p.pool.QueryRow(ctx, `SELECT `+pgReaderColumns+` FROM readers WHERE api_key_hash = $1 AND is_active LIMIT 1`, keyHash))
	metrics.ObserveNetworkRequest("postgres", "readers_by_key", "readers", start, ignoreNotFound(err))
	return reader, err
}

// GetReader реализует domain.ReaderRepo.
func (p *Postgres) GetReader(ctx context.Context, readerID string) (domain.Reader, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return scanPgReader(p.pool.QueryRow(ctx, `SELECT `+pgReaderColumns+` FROM readers WHERE reader_id = $1`, readerID))
}

// ListReaders реализует domain.ReaderRepo.
func (p *Postgres) ListReaders(ctx context.Context) ([]domain.Reader, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+pgReaderColumns+` FROM readers ORDER BY reader_id`)
	metrics.ObserveNetworkRequest("postgres", "readers_list", "readers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Reader
	for rows.Next() {
		r, err := scanPgReader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReader реализует domain.ReaderRepo.
func (p *Postgres) CreateReader(ctx context.Context, r domain.Reader) (domain.Reader, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO readers (id, reader_id, name, location, api_key_hash, is_active, created_at_utc)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
`, r.ID, r.ReaderID, r.Name, r.Location, r.APIKeyHash, r.IsActive, r.CreatedAt)
	if err != nil {
		return domain.Reader{}, fmt.Errorf("insert reader: %w", err)
	}
	return r, nil
}

// UpdateReaderKeyHash реализует domain.ReaderRepo.
func (p *Postgres) UpdateReaderKeyHash(ctx context.Context, readerID, keyHash string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	tag, err := p.pool.Exec(ctx, `UPDATE readers SET api_key_hash = $2 WHERE reader_id = $1`, readerID, keyHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReaderNotFound
	}
	return nil
}

// TouchReader реализует domain.ReaderRepo.
func (p *Postgres) TouchReader(ctx context.Context, readerID string, seen time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE readers SET last_ping_utc = $2 WHERE reader_id = $1`, readerID, seen.UTC())
	metrics.ObserveNetworkRequest("postgres", "readers_touch", "readers", start, err)
	return err
}

// ListActiveMealRules реализует domain.MealRuleRepo. Порядок — порядок создания.
func (p *Postgres) ListActiveMealRules(ctx context.Context) ([]domain.MealRule, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, meal_type, start_time_local, end_time_local, days_of_week_mask, priority, is_active
FROM meal_rules WHERE is_active ORDER BY seq
`)
	metrics.ObserveNetworkRequest("postgres", "meal_rules_active", "meal_rules", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.MealRule
	for rows.Next() {
		var (
			rule       domain.MealRule
			mealType   string
			start, end pgtype.Time
			mask       int32
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &mealType, &start, &end, &mask, &rule.Priority, &rule.IsActive); err != nil {
			return nil, err
		}
		rule.MealType = domain.MealType(mealType)
		rule.DaysOfWeekMask = domain.WeekdayMask(mask)
		rule.StartTimeLocal = fromPgTime(start)
		rule.EndTimeLocal = fromPgTime(end)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CountMealRules реализует domain.MealRuleRepo.
func (p *Postgres) CountMealRules(ctx context.Context) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM meal_rules`).Scan(&n)
	return n, err
}

// CreateMealRule реализует domain.MealRuleRepo.
func (p *Postgres) CreateMealRule(ctx context.Context, rule domain.MealRule) (domain.MealRule, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO meal_rules (id, name, meal_type, start_time_local, end_time_local, days_of_week_mask, priority, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, rule.ID, rule.Name, string(rule.MealType), toPgTime(rule.StartTimeLocal), toPgTime(rule.EndTimeLocal),
		int32(rule.DaysOfWeekMask), rule.Priority, rule.IsActive)
	if err != nil {
		return domain.MealRule{}, fmt.Errorf("insert meal rule: %w", err)
	}
	return rule, nil
}

// FindUserByUID реализует domain.UserRepo.
func (p *Postgres) FindUserByUID(ctx context.Context, uid string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var u domain.User
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, first_name, last_name, personnel_no, COALESCE(uid, ''), is_active, created_at_utc
FROM users WHERE uid = $1 LIMIT 1
`, uid).Scan(&u.ID, &u.FirstName, &u.LastName, &u.PersonnelNo, &u.UID, &u.IsActive, &u.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_by_uid", "users", start, ignoreNotFound(err))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// CreateUser реализует domain.UserRepo.
func (p *Postgres) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (id, first_name, last_name, personnel_no, uid, is_active, created_at_utc)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
`, u.ID, u.FirstName, u.LastName, u.PersonnelNo, u.UID, u.IsActive, u.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// CreateStamp реализует domain.StampRepo.
func (p *Postgres) CreateStamp(ctx context.Context, stamp domain.Stamp) (domain.Stamp, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "stamps", start, err)
	if err != nil {
		return domain.Stamp{}, err
	}
	var userID pgtype.UUID
	if stamp.UserID != nil {
		userID = pgtype.UUID{Bytes: *stamp.UserID, Valid: true}
	}
	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO stamps (id, timestamp_utc, timestamp_local, uid_raw, reader_id, meal_type, user_id, created_at_utc)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, stamp.ID, stamp.TimestampUTC.UTC(), wallClock(stamp.TimestampLocal), stamp.UIDRaw, stamp.ReaderID,
		string(stamp.MealType), userID, stamp.CreatedAt.UTC())
	metrics.ObserveNetworkRequest("postgres", "stamps_insert", "stamps", start, err)
	if err != nil {
		_ = tx.Rollback(ctx)
		return domain.Stamp{}, fmt.Errorf("insert stamp: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE readers SET last_ping_utc = $2 WHERE reader_id = $1`, stamp.ReaderID, stamp.CreatedAt.UTC()); err != nil {
		_ = tx.Rollback(ctx)
		return domain.Stamp{}, fmt.Errorf("touch reader: %w", err)
	}
	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "stamps", start, err)
	if err != nil {
		return domain.Stamp{}, err
	}
	return stamp, nil
}

const pgStampColumns = `id, timestamp_utc, timestamp_local, uid_raw, reader_id, meal_type, user_id, created_at_utc`

func (p *Postgres) scanStamp(row pgx.Row) (domain.Stamp, error) {
	var (
		st       domain.Stamp
		local    time.Time
		mealType string
		userID   pgtype.UUID
	)
	if err := row.Scan(&st.ID, &st.TimestampUTC, &local, &st.UIDRaw, &st.ReaderID, &mealType, &userID, &st.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stamp{}, domain.ErrStampNotFound
		}
		return domain.Stamp{}, err
	}
	st.TimestampUTC = st.TimestampUTC.UTC()
	st.CreatedAt = st.CreatedAt.UTC()
	st.TimestampLocal = inLocation(local, p.loc)
	st.MealType = domain.MealType(mealType)
	if userID.Valid {
		id := uuid.UUID(userID.Bytes)
		st.UserID = &id
	}
	return st, nil
}

// LatestStampForReader реализует domain.StampRepo.
func (p *Postgres) LatestStampForReader(ctx context.Context, readerID string) (domain.Stamp, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return p.scanStamp(p.pool.QueryRow(ctx, `SELECT `+pgStampColumns+` FROM stamps WHERE reader_id = $1 ORDER BY created_at_utc DESC, timestamp_utc DESC LIMIT 1`, readerID))
}

// ListStampsBetween реализует domain.StampRepo.
func (p *Postgres) ListStampsBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]domain.Stamp, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+pgStampColumns+` FROM stamps WHERE timestamp_utc >= $1 AND timestamp_utc <= $2 ORDER BY timestamp_utc`, fromUTC.UTC(), toUTC.UTC())
	metrics.ObserveNetworkRequest("postgres", "stamps_range", "stamps", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Stamp
	for rows.Next() {
		st, err := p.scanStamp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateStampMealTypes реализует domain.StampRepo одной транзакцией.
func (p *Postgres) UpdateStampMealTypes(ctx context.Context, mealTypes map[uuid.UUID]domain.MealType) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for id, mt := range mealTypes {
		batch.Queue(`UPDATE stamps SET meal_type = $2 WHERE id = $1`, id, string(mt))
	}
	start := time.Now()
	err = tx.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "stamps_recalculate", "stamps", start, err)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func toPgTime(t domain.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func fromPgTime(t pgtype.Time) domain.TimeOfDay {
	return domain.TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

// wallClock переносит показания часов в UTC, чтобы столбец timestamp
// хранил локальное время без сдвига.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func inLocation(wall time.Time, loc *time.Location) time.Time {
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), loc)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
