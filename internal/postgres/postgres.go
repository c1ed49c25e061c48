package postgres

import (
	"fmt"

	"github.com/costlens/costlens/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB wraps the sqlx handle to the reference database holding the dimension
// tables.
type DB struct {
	*sqlx.DB
}

func NewDB(config *config.Configuration) (*DB, error) {
	db, err := sqlx.Connect("postgres", config.Postgres.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("init postgres client: %w", err)
	}

	return &DB{DB: db}, nil
}

func (d *DB) Close() error {
	return d.DB.Close()
}
