package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	onetouch "github.com/goliatone/go-onetouch"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-onetouch"
)

var dialectDirs = map[string]string{
	DialectPostgres: "data/sql/migrations",
	DialectSQLite:   "data/sql/migrations/sqlite",
}

// Source is the migration set of one dialect. Versions lists the numeric
// prefixes of its up files in order.
type Source struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registration)

type registration struct {
	label    string
	dialects []string
	root     fs.FS
}

func WithSourceLabel(label string) Option {
	return func(r *registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.label = trimmed
		}
	}
}

// WithDialects limits registration to the given dialects. Driver names such
// as "sqlite3" or "postgresql" are accepted.
func WithDialects(dialects ...string) Option {
	return func(r *registration) {
		selected := make([]string, 0, len(dialects))
		for _, name := range dialects {
			if dialect, ok := NormalizeDialect(name); ok && !contains(selected, dialect) {
				selected = append(selected, dialect)
			}
		}
		if len(selected) > 0 {
			r.dialects = selected
		}
	}
}

// WithRoot replaces the embedded migrations filesystem.
func WithRoot(root fs.FS) Option {
	return func(r *registration) {
		if root != nil {
			r.root = root
		}
	}
}

func NormalizeDialect(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, true
	case "sqlite", "sqlite3":
		return DialectSQLite, true
	default:
		return "", false
	}
}

// Load returns the migration set of a dialect from root. Every up file must
// have a matching down file.
func Load(root fs.FS, dialect string) (Source, error) {
	normalized, ok := NormalizeDialect(dialect)
	if !ok {
		return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	if root == nil {
		root = onetouch.GetMigrationsFS()
	}
	dir := dialectDirs[normalized]
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	ups, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(ups) == 0 {
		return Source{}, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	sort.Strings(ups)

	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(sub, down); err != nil {
			return Source{}, fmt.Errorf("migrations: %s/%s has no down migration", dir, up)
		}
		version, _, _ := strings.Cut(up, "_")
		versions = append(versions, version)
	}
	return Source{Dialect: normalized, Path: dir, FS: sub, Versions: versions}, nil
}

// Register hands each selected dialect's migrations to registerFn, postgres
// first.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	reg := registration{
		label:    SourceLabel,
		dialects: []string{DialectPostgres, DialectSQLite},
		root:     onetouch.GetMigrationsFS(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	sources := make([]Source, 0, len(reg.dialects))
	for _, dialect := range reg.dialects {
		source, err := Load(reg.root, dialect)
		if err != nil {
			return sources, err
		}
		if err := registerFn(ctx, source.Dialect, reg.label, source.FS); err != nil {
			return sources, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

func contains(values []string, value string) bool {
	for _, existing := range values {
		if existing == value {
			return true
		}
	}
	return false
}
