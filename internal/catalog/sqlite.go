package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteGateway implements Gateway against a modernc.org/sqlite
// connection: pure Go, no cgo, matching the backend the rest of this
// codebase already standardizes on for its embedded catalogs.
type SQLiteGateway struct {
	db *sql.DB

	// buildMu serializes the in-process exclusive phase of a hierarchy
	// update. See Gateway.Lock.
	buildMu sync.Mutex

	// templates holds this Gateway's own copy of the named query
	// registry, seeded from defaultTemplates and overridable entry by
	// entry (see internal/config).
	templates map[string]string
}

// Open opens (and, if necessary, creates) the SQLite database at dsn and
// ensures the BVFS relations exist. dsn is passed through to
// modernc.org/sqlite verbatim, so "file:catalog.db?_pragma=foreign_keys(1)"
// style DSNs work as documented by that driver.
func Open(ctx context.Context, dsn string) (*SQLiteGateway, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", dsn, err)
	}
	// The catalog is written by short, mutex-serialized transactions;
	// a single writer connection avoids SQLITE_BUSY without needing a
	// busy-timeout retry loop.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %v", ErrCatalogFailure, err)
	}

	gw := &SQLiteGateway{
		db:        db,
		templates: cloneTemplates(),
	}
	if err := gw.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return gw, nil
}

func cloneTemplates() map[string]string {
	out := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		out[k] = v
	}
	return out
}

func (g *SQLiteGateway) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: schema init: %v", ErrCatalogFailure, err)
		}
	}
	return nil
}

// OverrideTemplate replaces the rendering used for the named template,
// for deployments whose catalog dialect needs a different query shape.
func (g *SQLiteGateway) OverrideTemplate(name, tmpl string) {
	g.templates[name] = tmpl
}

func (g *SQLiteGateway) Close() error { return g.db.Close() }

func (g *SQLiteGateway) BackendKind() BackendKind { return BackendSQLite }

func (g *SQLiteGateway) Lock()   { g.buildMu.Lock() }
func (g *SQLiteGateway) Unlock() { g.buildMu.Unlock() }

// Escape quotes a string literal for inline interpolation. SQLite's
// quoting rule: double any embedded single quote, wrap in single quotes.
func (g *SQLiteGateway) Escape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (g *SQLiteGateway) Template(name string, data map[string]any) (string, error) {
	tmpl, ok := g.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown template %q", ErrBadArgument, name)
	}
	return renderTemplate(tmpl, data)
}

func (g *SQLiteGateway) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	return n, nil
}

func (g *SQLiteGateway) Query(ctx context.Context, query string, handler func(Row) error, args ...any) error {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := handler(sqlRow{rows: rows}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	return nil
}

func (g *SQLiteGateway) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrCatalogFailure, err)
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx adapts *sql.Tx to Tx. *sql.Tx reports sql.ErrTxDone for a
// Rollback after Commit; sqlTx.Rollback turns that into a no-op, so every
// caller can defer Rollback() immediately after BeginTx without an extra
// "committed" bookkeeping flag.
type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	return n, nil
}

func (t *sqlTx) Query(ctx context.Context, query string, handler func(Row) error, args ...any) error {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := handler(sqlRow{rows: rows}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogFailure, err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrCatalogFailure, err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
