package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStore opens a postgres-backed store via the pgx stdlib driver.
func NewPostgresStore(databaseURL string) (*SQLStore, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &SQLStore{db: db, positional: true}, nil
}

// NewPostgresStoreFromDB wraps an existing connection pool, used by tests
// and callers that manage the pool themselves.
func NewPostgresStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, positional: true}
}
