package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"gamify-journal/internal/repository"
)

// Open opens (or creates) a sqlite database at the given path and ensures directories exist.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// a single connection serializes writers and keeps per-connection pragmas applied
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return db, nil
}

// Repositories bundles every sqlite-backed repository over one handle.
type Repositories struct {
	Users      repository.UserRepository
	Characters repository.CharacterRepository
	Entries    repository.EntryRepository
	Quests     repository.QuestRepository
	Exports    repository.ExportRepository
	Documents  repository.DocumentRepository
	Tx         repository.TxRunner
}

func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(db),
		Characters: NewCharacterRepository(db),
		Entries:    NewEntryRepository(db),
		Quests:     NewQuestRepository(db),
		Exports:    NewExportRepository(db),
		Documents:  NewDocumentRepository(db),
		Tx:         NewTxManager(db),
	}
}

// Init creates all tables. Users go first because everything references them.
func (r *Repositories) Init(ctx context.Context) error {
	steps := []struct {
		name string
		init func(context.Context) error
	}{
		{"users", r.Users.Init},
		{"characters", r.Characters.Init},
		{"entries", r.Entries.Init},
		{"quests", r.Quests.Init},
		{"exports", r.Exports.Init},
		{"documents", r.Documents.Init},
	}
	for _, step := range steps {
		if err := step.init(ctx); err != nil {
			return fmt.Errorf("init %s repository: %w", step.name, err)
		}
	}
	return nil
}

// addColumnIfMissing brings tables created by older builds up to date.
func addColumnIfMissing(ctx context.Context, db *sql.DB, table, column, definition string) error {
	rows, err := conn(ctx, db).QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			kind    string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s columns: %w", table, err)
	}
	rows.Close()

	if _, err := conn(ctx, db).ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+definition); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}
