package dialect

// AutoIncrementPK returns the column definition for a monotonically
// increasing integer primary key.
func AutoIncrementPK(driver string) string {
	if IsPostgres(driver) {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// InsertIgnoreVerb returns the INSERT verb that skips rows violating a
// unique constraint. Postgres expresses this as a suffix instead, see
// InsertIgnoreSuffix.
func InsertIgnoreVerb(driver string) string {
	if IsPostgres(driver) {
		return "INSERT"
	}
	return "INSERT OR IGNORE"
}

// InsertIgnoreSuffix returns the clause appended to an insert-ignore
// statement. Empty for SQLite.
func InsertIgnoreSuffix(driver string) string {
	if IsPostgres(driver) {
		return " ON CONFLICT DO NOTHING"
	}
	return ""
}
