// Package state records build history in SQLite.
//
// Every `barrel build` stores one row per invocation plus the resolved
// surface, so surfaces can be listed and compared across builds.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// ErrBuildNotFound is returned when no build matches an id.
var ErrBuildNotFound = errors.New("build not found")

var errNotOpened = errors.New("database not opened")

// SQLiteStore implements core.BuildStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ core.BuildStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{now: func() time.Time { return time.Now().UTC() }}
}

// OpenStore opens path and applies migrations.
func OpenStore(ctx context.Context, path string) (*SQLiteStore, error) {
	s := NewSQLiteStore()
	if err := s.Open(ctx, path); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(ctx context.Context, path string) error {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn += "&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// RecordBuild implements core.BuildStore.
func (s *SQLiteStore) RecordBuild(ctx context.Context, rec *core.BuildRecord, surface *core.Surface) error {
	if s.db == nil {
		return errNotOpened
	}
	if rec.Manifest == "" && surface != nil {
		rec.Manifest = surface.Manifest
	}
	if rec.Manifest == "" {
		return fmt.Errorf("build record has no manifest name")
	}
	if rec.Status == "" {
		rec.Status = core.BuildStatusSucceeded
	}

	rec.ID = generateID()
	rec.CreatedAt = s.now()
	if surface != nil {
		rec.Digest = manifest.Digest(surface)
		rec.SymbolCount = surface.Len()
		rec.ModuleCount = len(surface.Modules)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO builds (id, manifest, status, digest, symbol_count, module_count, output_bytes, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Manifest, string(rec.Status), rec.Digest, rec.SymbolCount, rec.ModuleCount,
		rec.OutputBytes, rec.Error, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}

	if surface != nil {
		if err := insertSurface(ctx, tx, rec.ID, surface); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build: %w", err)
	}
	return nil
}

func insertSurface(ctx context.Context, tx *sql.Tx, buildID string, surface *core.Surface) error {
	bindStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO build_bindings (build_id, position, name, module, original, ref_index) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare binding insert: %w", err)
	}
	defer func() { _ = bindStmt.Close() }()

	for i, b := range surface.Bindings {
		if _, err := bindStmt.ExecContext(ctx, buildID, i, b.Name, b.Module, b.Original, b.Ref); err != nil {
			return fmt.Errorf("failed to record binding %s: %w", b.Name, err)
		}
	}

	for i, id := range surface.Modules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO build_modules (build_id, ref_index, module_id) VALUES (?, ?, ?)`,
			buildID, i, id,
		); err != nil {
			return fmt.Errorf("failed to record module %s: %w", id, err)
		}
	}
	return nil
}

const buildColumns = `id, manifest, status, digest, symbol_count, module_count, output_bytes, error, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (*core.BuildRecord, error) {
	rec := &core.BuildRecord{}
	var status string
	var created int64
	if err := row.Scan(&rec.ID, &rec.Manifest, &status, &rec.Digest, &rec.SymbolCount,
		&rec.ModuleCount, &rec.OutputBytes, &rec.Error, &created); err != nil {
		return nil, err
	}
	rec.Status = core.BuildStatus(status)
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}

// GetBuild implements core.BuildStore. A prefix must match exactly one build.
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*core.BuildRecord, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrBuildNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`,
		id, stripLikeWildcards(id)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query build: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var found []*core.BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		if rec.ID == id {
			return rec, nil
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("build id prefix %q is ambiguous", id)
	}
}

// Surface implements core.BuildStore.
func (s *SQLiteStore) Surface(ctx context.Context, buildID string) (*core.Surface, error) {
	rec, err := s.GetBuild(ctx, buildID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, module, original, ref_index FROM build_bindings WHERE build_id = ? ORDER BY position`,
		rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []core.Binding
	for rows.Next() {
		var b core.Binding
		if err := rows.Scan(&b.Name, &b.Module, &b.Original, &b.Ref); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modRows, err := s.db.QueryContext(ctx,
		`SELECT module_id FROM build_modules WHERE build_id = ? ORDER BY ref_index`,
		rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer func() { _ = modRows.Close() }()

	var modules []string
	for modRows.Next() {
		var id string
		if err := modRows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, id)
	}
	if err := modRows.Err(); err != nil {
		return nil, err
	}

	return core.NewSurface(rec.Manifest, bindings, modules), nil
}

// ListBuilds implements core.BuildStore.
func (s *SQLiteStore) ListBuilds(ctx context.Context, filter core.BuildFilter) ([]*core.BuildRecord, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	query := `SELECT ` + buildColumns + ` FROM builds`
	var (
		where []string
		args  []any
	)
	if filter.Manifest != "" {
		where = append(where, "manifest = ?")
		args = append(args, filter.Manifest)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestBuild returns the newest successful build of a manifest.
func (s *SQLiteStore) LatestBuild(ctx context.Context, manifestName string) (*core.BuildRecord, error) {
	recs, err := s.ListBuilds(ctx, core.BuildFilter{
		Manifest: manifestName,
		Status:   core.BuildStatusSucceeded,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no successful build of %s", ErrBuildNotFound, manifestName)
	}
	return recs[0], nil
}

func stripLikeWildcards(s string) string {
	r := strings.NewReplacer("%", "", "_", "")
	return r.Replace(s)
}
