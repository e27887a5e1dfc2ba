package dialect

// SkipLocked returns the row-claim suffix for SELECTs that feed a sweep.
//
//	Postgres: FOR UPDATE SKIP LOCKED, so concurrent sweeps claim disjoint rows.
//	SQLite:   empty; the single writer connection already serializes sweeps.
func SkipLocked(driver string) string {
	if IsPostgres(driver) {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

// ForUpdate returns the row-lock suffix for read-modify-write transactions.
// Empty for SQLite, where the single writer connection already holds the
// database lock.
func ForUpdate(driver string) string {
	if IsPostgres(driver) {
		return " FOR UPDATE"
	}
	return ""
}
