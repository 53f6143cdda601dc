package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/migrations"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.sql$`)

// Migration is one embedded forward-only SQL file.
type Migration struct {
	Version string
	Order   int
	Name    string
	SQL     string
}

// Status pairs a migration with the time it was applied, nil when pending.
type Status struct {
	Migration
	AppliedAt *time.Time
}

// Runner applies the embedded migrations for the dialect of db.
type Runner struct {
	db     *sqlx.DB
	fsys   fs.FS
	logger *zap.SugaredLogger
}

func NewRunner(db *sqlx.DB, logger *zap.SugaredLogger) (*Runner, error) {
	dir, err := dialectDir(db.DriverName())
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(migrations.Files, dir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations %s: %w", dir, err)
	}
	return &Runner{db: db, fsys: sub, logger: logger}, nil
}

func dialectDir(driver string) (string, error) {
	switch driver {
	case database.DriverPostgres:
		return "postgres", nil
	case database.DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

// Up applies every migration not yet recorded in schema_migrations and
// returns how many were applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	all, err := r.load()
	if err != nil {
		return 0, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range all {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return n, err
		}
		if r.logger != nil {
			r.logger.Infow("migration applied", "version", m.Version, "name", m.Name)
		}
		n++
	}
	return n, nil
}

// Status lists every embedded migration in order with its applied time.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	all, err := r.load()
	if err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(all))
	for _, m := range all {
		st := Status{Migration: m}
		if at, ok := applied[m.Version]; ok {
			at := at
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TIMESTAMP NOT NULL
)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func (r *Runner) load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	out := make([]Migration, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		matches := migrationFilePattern.FindStringSubmatch(name)
		if len(matches) != 2 {
			continue
		}
		version := matches[1]
		order, err := strconv.Atoi(version)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", name, err)
		}
		if existing, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s in %s and %s", version, existing, name)
		}
		seen[version] = name
		raw, err := fs.ReadFile(r.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Order: order, Name: name, SQL: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order == out[j].Order {
			return out[i].Name < out[j].Name
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (r *Runner) applied(ctx context.Context) (map[string]time.Time, error) {
	var rows []struct {
		Version   string    `db:"version"`
		AppliedAt time.Time `db:"applied_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT version, applied_at FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("load applied migration versions: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.Version] = row.AppliedAt
	}
	return out, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return errors.New("migration has no SQL statements")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration %s statement %q: %w", m.Name, stmt, err)
		}
	}
	q := tx.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q, m.Version, m.Name, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	return tx.Commit()
}

func splitStatements(sqlText string) []string {
	parts := strings.Split(sqlText, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
