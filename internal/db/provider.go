package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/common/config"
	"github.com/taskloop/taskloop/internal/db/dialect"
)

// Open opens the connection pool described by cfg.
//
// SQLite gets a single-connection writer plus a read-only reader pool so WAL
// snapshots keep reads off the write path. Postgres shares one pgx-backed
// pool for both roles.
func Open(cfg config.DatabaseConfig) (*Pool, error) {
	switch cfg.Driver {
	case "sqlite", "":
		writer, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		reader, err := OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		return NewPool(
			sqlx.NewDb(writer, dialect.SQLite3),
			sqlx.NewDb(reader, dialect.SQLite3),
		), nil
	case "postgres":
		conn, err := OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, err
		}
		shared := sqlx.NewDb(conn, dialect.PGX)
		return NewPool(shared, shared), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
