package dialect

import "strings"

// CaseInsensitiveLike returns a case-insensitive LIKE condition for col with
// one bind parameter. Patterns must be escaped with EscapeLike first.
//
//	SQLite:   LOWER(col) LIKE LOWER(?) ESCAPE '\'
//	Postgres: col ILIKE ? ESCAPE '\'
func CaseInsensitiveLike(driver, col string) string {
	if IsPostgres(driver) {
		return col + ` ILIKE ? ESCAPE '\'`
	}
	return "LOWER(" + col + `) LIKE LOWER(?) ESCAPE '\'`
}

// EscapeLike escapes LIKE metacharacters in a literal search term so the
// term matches itself rather than acting as a pattern.
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
