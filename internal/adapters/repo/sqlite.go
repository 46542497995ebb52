package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canteen-rfid/internal/domain"
)

const (
	utcLayout   = "2006-01-02T15:04:05.000000000Z"
	localLayout = "2006-01-02T15:04:05.000000000"
)

// SQLite реализует domain.Store поверх встроенной базы.
// Время хранится текстом фиксированной ширины, чтобы сравнение строк
// совпадало со сравнением моментов.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
}

var _ domain.Store = (*SQLite)(nil)

// NewSQLite создаёт адаптер. loc используется для локального времени отметок.
func NewSQLite(db *sql.DB, loc *time.Location) *SQLite {
	if loc == nil {
		loc = time.UTC
	}
	return &SQLite{db: db, loc: loc}
}

// InitSchema создаёт таблицы, если их ещё нет.
func (s *SQLite) InitSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close закрывает соединение с базой.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteReaderColumns = `id, reader_id, name, location, api_key_hash, is_active, last_ping_utc, created_at_utc`

func (s *SQLite) scanReader(row interface{ Scan(...any) error }) (domain.Reader, error) {
	var (
		r        domain.Reader
		id       string
		name     sql.NullString
		location sql.NullString
		lastPing sql.NullString
		created  string
	)
	if err := row.Scan(&id, &r.ReaderID, &name, &location, &r.APIKeyHash, &r.IsActive, &lastPing, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reader{}, domain.ErrReaderNotFound
		}
		return domain.Reader{}, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return domain.Reader{}, fmt.Errorf("reader id: %w", err)
	}
	r.Name = name.String
	r.Location = location.String
	if lastPing.Valid {
		ts, err := parseUTC(lastPing.String)
		if err != nil {
			return domain.Reader{}, err
		}
		r.LastPingUTC = &ts
	}
	if r.CreatedAt, err = parseUTC(created); err != nil {
		return domain.Reader{}, err
	}
	return r, nil
}

// FindActiveReaderByKeyHash реализует domain.ReaderRepo.
func (s *SQLite) FindActiveReaderByKeyHash(ctx context.Context, keyHash string) (domain.Reader, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteReaderColumns+` FROM readers WHERE api_key_hash = ? AND is_active = 1 LIMIT 1`, keyHash)
	return s.scanReader(row)
}

// GetReader реализует domain.ReaderRepo.
func (s *SQLite) GetReader(ctx context.Context, readerID string) (domain.Reader, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteReaderColumns+` FROM readers WHERE reader_id = ?`, readerID)
	return s.scanReader(row)
}

// ListReaders реализует domain.ReaderRepo.
func (s *SQLite) ListReaders(ctx context.Context) ([]domain.Reader, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteReaderColumns+` FROM readers ORDER BY reader_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Reader
	for rows.Next() {
		r, err := s.scanReader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReader реализует domain.ReaderRepo.
func (s *SQLite) CreateReader(ctx context.Context, r domain.Reader) (domain.Reader, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO readers (id, reader_id, name, location, api_key_hash, is_active, created_at_utc)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`,
		r.ID.String(), r.ReaderID, r.Name, r.Location, r.APIKeyHash, r.IsActive, formatUTC(r.CreatedAt))
	if err != nil {
		return domain.Reader{}, fmt.Errorf("insert reader: %w", err)
	}
	return r, nil
}

// UpdateReaderKeyHash реализует domain.ReaderRepo.
func (s *SQLite) UpdateReaderKeyHash(ctx context.Context, readerID, keyHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE readers SET api_key_hash = ? WHERE reader_id = ?`, keyHash, readerID)
	if err != nil {
		return err
	}
	return requireAffected(res, domain.ErrReaderNotFound)
}

// TouchReader реализует domain.ReaderRepo. Неизвестный ридер не считается ошибкой.
func (s *SQLite) TouchReader(ctx context.Context, readerID string, seen time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE readers SET last_ping_utc = ? WHERE reader_id = ?`, formatUTC(seen), readerID)
	return err
}

// ListActiveMealRules реализует domain.MealRuleRepo. Порядок — порядок создания.
func (s *SQLite) ListActiveMealRules(ctx context.Context) ([]domain.MealRule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, meal_type, start_time_local, end_time_local, days_of_week_mask, priority, is_active
FROM meal_rules WHERE is_active = 1 ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.MealRule
	for rows.Next() {
		var (
			rule       domain.MealRule
			id         string
			mealType   string
			start, end string
			mask       int
		)
		if err := rows.Scan(&id, &rule.Name, &mealType, &start, &end, &mask, &rule.Priority, &rule.IsActive); err != nil {
			return nil, err
		}
		if rule.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("meal rule id: %w", err)
		}
		rule.MealType = domain.MealType(mealType)
		rule.DaysOfWeekMask = domain.WeekdayMask(mask)
		if rule.StartTimeLocal, err = domain.ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if rule.EndTimeLocal, err = domain.ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CountMealRules реализует domain.MealRuleRepo.
func (s *SQLite) CountMealRules(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meal_rules`).Scan(&n)
	return n, err
}

// CreateMealRule реализует domain.MealRuleRepo.
func (s *SQLite) CreateMealRule(ctx context.Context, rule domain.MealRule) (domain.MealRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO meal_rules (id, name, meal_type, start_time_local, end_time_local, days_of_week_mask, priority, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID.String(), rule.Name, string(rule.MealType), rule.StartTimeLocal.String(), rule.EndTimeLocal.String(),
		int(rule.DaysOfWeekMask), rule.Priority, rule.IsActive)
	if err != nil {
		return domain.MealRule{}, fmt.Errorf("insert meal rule: %w", err)
	}
	return rule, nil
}

// FindUserByUID реализует domain.UserRepo.
func (s *SQLite) FindUserByUID(ctx context.Context, uid string) (domain.User, error) {
	var (
		u       domain.User
		id      string
		userUID sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, first_name, last_name, personnel_no, uid, is_active, created_at_utc
FROM users WHERE uid = ? LIMIT 1`, uid).Scan(&id, &u.FirstName, &u.LastName, &u.PersonnelNo, &userUID, &u.IsActive, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return domain.User{}, fmt.Errorf("user id: %w", err)
	}
	u.UID = userUID.String
	if u.CreatedAt, err = parseUTC(created); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateUser реализует domain.UserRepo.
func (s *SQLite) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, first_name, last_name, personnel_no, uid, is_active, created_at_utc)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		u.ID.String(), u.FirstName, u.LastName, u.PersonnelNo, u.UID, u.IsActive, formatUTC(u.CreatedAt))
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// CreateStamp реализует domain.StampRepo.
func (s *SQLite) CreateStamp(ctx context.Context, stamp domain.Stamp) (domain.Stamp, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stamp{}, err
	}
	var userID sql.NullString
	if stamp.UserID != nil {
		userID = sql.NullString{String: stamp.UserID.String(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO stamps (id, timestamp_utc, timestamp_local, uid_raw, reader_id, meal_type, user_id, created_at_utc)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stamp.ID.String(), formatUTC(stamp.TimestampUTC), stamp.TimestampLocal.Format(localLayout),
		stamp.UIDRaw, stamp.ReaderID, string(stamp.MealType), userID, formatUTC(stamp.CreatedAt))
	if err != nil {
		_ = tx.Rollback()
		return domain.Stamp{}, fmt.Errorf("insert stamp: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE readers SET last_ping_utc = ? WHERE reader_id = ?`, formatUTC(stamp.CreatedAt), stamp.ReaderID); err != nil {
		_ = tx.Rollback()
		return domain.Stamp{}, fmt.Errorf("touch reader: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Stamp{}, err
	}
	return stamp, nil
}

const sqliteStampColumns = `id, timestamp_utc, timestamp_local, uid_raw, reader_id, meal_type, user_id, created_at_utc`

func (s *SQLite) scanStamp(row interface{ Scan(...any) error }) (domain.Stamp, error) {
	var (
		st                domain.Stamp
		id, utc, local    string
		mealType, created string
		userID            sql.NullString
	)
	if err := row.Scan(&id, &utc, &local, &st.UIDRaw, &st.ReaderID, &mealType, &userID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Stamp{}, domain.ErrStampNotFound
		}
		return domain.Stamp{}, err
	}
	var err error
	if st.ID, err = uuid.Parse(id); err != nil {
		return domain.Stamp{}, fmt.Errorf("stamp id: %w", err)
	}
	if st.TimestampUTC, err = parseUTC(utc); err != nil {
		return domain.Stamp{}, err
	}
	if st.TimestampLocal, err = time.ParseInLocation(localLayout, local, s.loc); err != nil {
		return domain.Stamp{}, fmt.Errorf("timestamp_local: %w", err)
	}
	if st.CreatedAt, err = parseUTC(created); err != nil {
		return domain.Stamp{}, err
	}
	st.MealType = domain.MealType(mealType)
	if userID.Valid {
		uid, err := uuid.Parse(userID.String)
		if err != nil {
			return domain.Stamp{}, fmt.Errorf("stamp user id: %w", err)
		}
		st.UserID = &uid
	}
	return st, nil
}

// LatestStampForReader реализует domain.StampRepo.
func (s *SQLite) LatestStampForReader(ctx context.Context, readerID string) (domain.Stamp, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteStampColumns+` FROM stamps WHERE reader_id = ? ORDER BY created_at_utc DESC, timestamp_utc DESC LIMIT 1`, readerID)
	return s.scanStamp(row)
}

// ListStampsBetween реализует domain.StampRepo.
func (s *SQLite) ListStampsBetween(ctx context.Context, fromUTC, toUTC time.Time) ([]domain.Stamp, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteStampColumns+` FROM stamps WHERE timestamp_utc >= ? AND timestamp_utc <= ? ORDER BY timestamp_utc`,
		formatUTC(fromUTC), formatUTC(toUTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Stamp
	for rows.Next() {
		st, err := s.scanStamp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateStampMealTypes реализует domain.StampRepo.
func (s *SQLite) UpdateStampMealTypes(ctx context.Context, mealTypes map[uuid.UUID]domain.MealType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE stamps SET meal_type = ? WHERE id = ?`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for id, mt := range mealTypes {
		if _, err := stmt.ExecContext(ctx, string(mt), id.String()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update stamp %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func formatUTC(t time.Time) string {
	return t.UTC().Format(utcLayout)
}

func parseUTC(raw string) (time.Time, error) {
	t, err := time.Parse(utcLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
