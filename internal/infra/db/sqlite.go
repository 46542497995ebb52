package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemorySQLite — путь для базы в памяти (тесты, демо).
const MemorySQLite = ":memory:"

// OpenSQLite открывает встроенную базу, создавая каталог при необходимости.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if path != MemorySQLite {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// одно соединение: запись в SQLite всё равно сериализуется,
	// а база в памяти живёт ровно столько, сколько соединение
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)
	if path != MemorySQLite {
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}
	return conn, nil
}
