package versionstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	kindAction  = "action"
	kindPackage = "package"
)

// SQLiteStore keeps versions in a SQLite database, one row per unit.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database: "+err.Error(), ErrConnectionFailed)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database: "+err.Error(), ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type versionRow struct {
	Kind    string `db:"kind"`
	Name    string `db:"name"`
	Version string `db:"version"`
	Digest  string `db:"digest"`
}

// Load returns the stored entry for id, or an empty entry when none exists.
func (s *SQLiteStore) Load(ctx context.Context, id versions.Identity) (versions.Entry, error) {
	var rows []versionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT kind, name, version, digest FROM versions
		WHERE project_path = ? AND namespace = ? AND apihost = ?`,
		id.ProjectPath, id.Namespace, id.APIHost)
	if err != nil {
		return versions.Entry{}, NewStoreError("Load", id.Namespace, "failed to query versions", err)
	}

	entry := versions.NewEntry()
	for _, r := range rows {
		info := versions.Info{Version: r.Version, Digest: r.Digest}
		switch r.Kind {
		case kindAction:
			entry.ActionVersions[r.Name] = info
		case kindPackage:
			entry.PackageVersions[r.Name] = info
		}
	}
	return entry, nil
}

// Save replaces the stored entry for id in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, id versions.Identity, entry versions.Entry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("Save", id.Namespace, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM versions WHERE project_path = ? AND namespace = ? AND apihost = ?`,
		id.ProjectPath, id.Namespace, id.APIHost); err != nil {
		return NewStoreError("Save", id.Namespace, "failed to clear versions", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	insert := func(kind string, m map[string]versions.Info) error {
		for name, info := range m {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO versions (project_path, namespace, apihost, kind, name, version, digest, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id.ProjectPath, id.Namespace, id.APIHost, kind, name, info.Version, info.Digest, now); err != nil {
				return NewStoreError("Save", id.Namespace, "failed to insert "+kind+" "+name, err)
			}
		}
		return nil
	}
	if err := insert(kindAction, entry.ActionVersions); err != nil {
		return err
	}
	if err := insert(kindPackage, entry.PackageVersions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("Save", id.Namespace, "failed to commit", err)
	}
	return nil
}
