package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/repository"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	mood TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	xp_earned INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	recorded_at DATETIME NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_journal_entries_user_created ON journal_entries(user_id, created_at);
`

const entryColumns = `id, user_id, title, content, mood, tags, xp_earned, created_at, recorded_at`

type EntryRepository struct {
	db *sql.DB
}

func NewEntryRepository(db *sql.DB) repository.EntryRepository {
	return &EntryRepository{db: db}
}

func (r *EntryRepository) Init(ctx context.Context) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, createEntriesTable); err != nil {
		return fmt.Errorf("create journal entries table: %w", err)
	}
	if err := addColumnIfMissing(ctx, r.db, "journal_entries", "recorded_at", "DATETIME NULL"); err != nil {
		return fmt.Errorf("upgrade journal entries table: %w", err)
	}
	return nil
}

func (r *EntryRepository) Create(ctx context.Context, entry *domain.JournalEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = entry.CreatedAt
	}
	entry.RecordedAt = entry.RecordedAt.UTC()
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	tags, err := encodeJSON(entry.Tags)
	if err != nil {
		return 0, err
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO journal_entries (user_id, title, content, mood, tags, xp_earned, created_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID,
		entry.Title,
		entry.Content,
		entry.Mood,
		tags,
		entry.XPEarned,
		entry.CreatedAt,
		entry.RecordedAt,
	)
	if err != nil {
		return 0, classifyInsert("journal entry", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal entry last insert id: %w", err)
	}
	entry.ID = id
	return id, nil
}

func (r *EntryRepository) Get(ctx context.Context, userID, id int64) (*domain.JournalEntry, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM journal_entries
WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListByUser pages entries newest first.
func (r *EntryRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]domain.JournalEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+entryColumns+`
FROM journal_entries
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	return collectEntries(rows)
}

func (r *EntryRepository) ListByUserBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.JournalEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+entryColumns+`
FROM journal_entries
WHERE user_id = ? AND created_at >= ? AND created_at <= ?
ORDER BY created_at ASC, id ASC`,
		userID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries in range: %w", err)
	}
	return collectEntries(rows)
}

func (r *EntryRepository) ListAllByUser(ctx context.Context, userID int64) ([]domain.JournalEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+entryColumns+`
FROM journal_entries
WHERE user_id = ?
ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list all journal entries: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row scanner) (*domain.JournalEntry, error) {
	var (
		entry      domain.JournalEntry
		tags       string
		recordedAt sql.NullTime
	)
	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Title,
		&entry.Content,
		&entry.Mood,
		&tags,
		&entry.XPEarned,
		&entry.CreatedAt,
		&recordedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("journal entry: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan journal entry: %w", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	// rows written before recorded_at existed were recorded at their event time
	entry.RecordedAt = entry.CreatedAt
	if recordedAt.Valid {
		entry.RecordedAt = recordedAt.Time.UTC()
	}
	entry.Tags = []string{}
	if err := decodeJSON(tags, &entry.Tags); err != nil {
		return nil, fmt.Errorf("journal entry tags: %w", err)
	}
	return &entry, nil
}
