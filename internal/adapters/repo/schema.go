package repo

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS readers (
		id UUID PRIMARY KEY,
		reader_id TEXT NOT NULL UNIQUE,
		name TEXT,
		location TEXT,
		api_key_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_ping_utc TIMESTAMPTZ,
		created_at_utc TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readers_key_hash ON readers (api_key_hash)`,
	`CREATE TABLE IF NOT EXISTS meal_rules (
		id UUID PRIMARY KEY,
		seq BIGSERIAL,
		name TEXT NOT NULL,
		meal_type TEXT NOT NULL,
		start_time_local TIME NOT NULL,
		end_time_local TIME NOT NULL,
		days_of_week_mask INTEGER NOT NULL DEFAULT 127,
		priority INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		personnel_no TEXT NOT NULL UNIQUE,
		uid TEXT UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at_utc TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stamps (
		id UUID PRIMARY KEY,
		timestamp_utc TIMESTAMPTZ NOT NULL,
		timestamp_local TIMESTAMP NOT NULL,
		uid_raw TEXT NOT NULL,
		reader_id TEXT NOT NULL,
		meal_type TEXT NOT NULL,
		user_id UUID REFERENCES users (id) ON DELETE SET NULL,
		created_at_utc TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stamps_timestamp_utc ON stamps (timestamp_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_stamps_reader_created ON stamps (reader_id, created_at_utc DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS readers (
		id TEXT PRIMARY KEY,
		reader_id TEXT NOT NULL UNIQUE,
		name TEXT,
		location TEXT,
		api_key_hash TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_ping_utc TEXT,
		created_at_utc TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readers_key_hash ON readers (api_key_hash)`,
	`CREATE TABLE IF NOT EXISTS meal_rules (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		meal_type TEXT NOT NULL,
		start_time_local TEXT NOT NULL,
		end_time_local TEXT NOT NULL,
		days_of_week_mask INTEGER NOT NULL DEFAULT 127,
		priority INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		personnel_no TEXT NOT NULL UNIQUE,
		uid TEXT UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at_utc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stamps (
		id TEXT PRIMARY KEY,
		timestamp_utc TEXT NOT NULL,
		timestamp_local TEXT NOT NULL,
		uid_raw TEXT NOT NULL,
		reader_id TEXT NOT NULL,
		meal_type TEXT NOT NULL,
		user_id TEXT REFERENCES users (id) ON DELETE SET NULL,
		created_at_utc TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stamps_timestamp_utc ON stamps (timestamp_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_stamps_reader_created ON stamps (reader_id, created_at_utc)`,
}
