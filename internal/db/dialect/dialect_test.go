package dialect

import "testing"

func TestIsPostgres(t *testing.T) {
	if !IsPostgres(PGX) {
		t.Error("expected pgx to be postgres")
	}
	if !IsPostgres("postgres") {
		t.Error("expected postgres driver name to be postgres")
	}
	if IsPostgres(SQLite3) {
		t.Error("expected sqlite3 to not be postgres")
	}
}

func TestAutoIncrementPK(t *testing.T) {
	if got := AutoIncrementPK(SQLite3); got != "INTEGER PRIMARY KEY AUTOINCREMENT" {
		t.Errorf("sqlite: got %q", got)
	}
	if got := AutoIncrementPK(PGX); got != "BIGSERIAL PRIMARY KEY" {
		t.Errorf("pgx: got %q", got)
	}
}

func TestInsertIgnore(t *testing.T) {
	if got := InsertIgnoreVerb(SQLite3) + InsertIgnoreSuffix(SQLite3); got != "INSERT OR IGNORE" {
		t.Errorf("sqlite: got %q", got)
	}
	if got := InsertIgnoreVerb(PGX) + InsertIgnoreSuffix(PGX); got != "INSERT ON CONFLICT DO NOTHING" {
		t.Errorf("pgx: got %q", got)
	}
}

func TestCaseInsensitiveLike(t *testing.T) {
	got := CaseInsensitiveLike(SQLite3, "title")
	if got != `LOWER(title) LIKE LOWER(?) ESCAPE '\'` {
		t.Errorf("sqlite: got %q", got)
	}
	got = CaseInsensitiveLike(PGX, "title")
	if got != `title ILIKE ? ESCAPE '\'` {
		t.Errorf("pgx: got %q", got)
	}
}

func TestEscapeLike(t *testing.T) {
	got := EscapeLike(`50%_done\now`)
	want := `50\%\_done\\now`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSkipLocked(t *testing.T) {
	if got := SkipLocked(SQLite3); got != "" {
		t.Errorf("sqlite: got %q", got)
	}
	if got := SkipLocked(PGX); got != " FOR UPDATE SKIP LOCKED" {
		t.Errorf("pgx: got %q", got)
	}
}

func TestForUpdate(t *testing.T) {
	if got := ForUpdate(SQLite3); got != "" {
		t.Errorf("sqlite: got %q", got)
	}
	if got := ForUpdate(PGX); got != " FOR UPDATE" {
		t.Errorf("pgx: got %q", got)
	}
}
