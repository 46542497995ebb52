package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/db"
)

// Store — хранилище со схемой, которую можно создать при старте.
type Store interface {
	domain.Store
	InitSchema(ctx context.Context) error
}

// Open подключает хранилище выбранного драйвера и создаёт схему.
func Open(ctx context.Context, driver, pgDSN, sqlitePath string, loc *time.Location) (Store, error) {
	var store Store
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres":
		if pgDSN == "" {
			return nil, fmt.Errorf("PG_DSN is required for postgres driver")
		}
		pool, err := db.Connect(pgDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = NewPostgres(pool, loc)
	case "sqlite":
		conn, err := db.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		store = NewSQLite(conn, loc)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
