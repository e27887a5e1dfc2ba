// Package dialect provides SQL fragments that differ between SQLite and
// PostgreSQL so repositories can be written once against sqlx.
package dialect

const (
	// SQLite3 is the driver name for mattn/go-sqlite3.
	SQLite3 = "sqlite3"
	// PGX is the driver name for the pgx stdlib adapter.
	PGX = "pgx"
)

// IsPostgres reports whether the driver name targets PostgreSQL.
func IsPostgres(driver string) bool {
	return driver == PGX || driver == "postgres"
}
