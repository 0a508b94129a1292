package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	onetouch "github.com/goliatone/go-onetouch"
	_ "github.com/mattn/go-sqlite3"
)

func TestLoad_ReturnsBothDialects(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		source, err := Load(nil, dialect)
		if err != nil {
			t.Fatalf("load %s: %v", dialect, err)
		}
		if source.Dialect != dialect {
			t.Fatalf("expected dialect %q, got %q", dialect, source.Dialect)
		}
		if len(source.Versions) == 0 || source.Versions[0] != "00001" {
			t.Fatalf("expected version 00001 for %s, got %#v", dialect, source.Versions)
		}
		matches, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil || len(matches) == 0 {
			t.Fatalf("expected %s up migrations, got %v (%v)", dialect, matches, err)
		}
	}
}

func TestLoad_RejectsUnpairedMigration(t *testing.T) {
	root := fstest.MapFS{
		"data/sql/migrations/00001_init.up.sql": {Data: []byte("CREATE TABLE t (id TEXT);")},
	}
	if _, err := Load(root, DialectPostgres); err == nil {
		t.Fatalf("expected missing down migration to fail")
	}
	if _, err := Load(root, "mysql"); err == nil {
		t.Fatalf("expected unsupported dialect to fail")
	}
}

func TestNormalizeDialect(t *testing.T) {
	cases := map[string]string{"sqlite3": DialectSQLite, "SQLite": DialectSQLite, "postgresql": DialectPostgres, "pg": DialectPostgres}
	for input, want := range cases {
		got, ok := NormalizeDialect(input)
		if !ok || got != want {
			t.Fatalf("expected %q for %q, got %q", want, input, got)
		}
	}
}

func TestRegister_SelectsDialects(t *testing.T) {
	var calls []string
	var labels []string
	sources, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithDialects("sqlite3"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 || len(sources) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if labels[0] != SourceLabel {
		t.Fatalf("expected %s source label, got %q", SourceLabel, labels[0])
	}
}

func TestRegister_PropagatesRegisterError(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return errors.New("boom")
	}, WithSourceLabel("host-app"))
	if err == nil || !strings.Contains(err.Error(), "register postgres") {
		t.Fatalf("expected postgres registration error, got %v", err)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestPaymentsMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := onetouch.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_onetouch_payments.up.sql",
		"data/sql/migrations/00001_onetouch_payments.down.sql",
		"data/sql/migrations/sqlite/00001_onetouch_payments.up.sql",
		"data/sql/migrations/sqlite/00001_onetouch_payments.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLitePaymentsMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-onetouch-payments?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(onetouch.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_onetouch_payments.up.sql"); err != nil {
		t.Fatalf("apply payments migration up: %v", err)
	}

	for _, tableName := range []string{"onetouch_payments", "onetouch_saved_cards"} {
		if count := tableCount(t, db, tableName); count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	if _, err := db.ExecContext(
		context.Background(),
		`INSERT INTO onetouch_saved_cards (payment_id, device_id, token_ciphertext) VALUES (?, ?, ?)`,
		"PAY-missing",
		"device-1",
		[]byte("sealed"),
	); err == nil {
		t.Fatalf("expected foreign key violation for saved card without payment")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_onetouch_payments.down.sql"); err != nil {
		t.Fatalf("apply payments migration down: %v", err)
	}
	if count := tableCount(t, db, "onetouch_payments"); count != 0 {
		t.Fatalf("expected onetouch_payments to be dropped after down migration")
	}
}

func tableCount(t *testing.T, db *sql.DB, tableName string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		tableName,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", tableName, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
