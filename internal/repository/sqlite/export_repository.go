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

const createExportsTable = `
CREATE TABLE IF NOT EXISTS exports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	export_key TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	entry_count INTEGER NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
`

const exportColumns = `id, user_id, export_key, status, entry_count, location, object_key, error_message, created_at, updated_at, completed_at`

type ExportRepository struct {
	db *sql.DB
}

func NewExportRepository(db *sql.DB) repository.ExportRepository {
	return &ExportRepository{db: db}
}

func (r *ExportRepository) Init(ctx context.Context) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, createExportsTable); err != nil {
		return fmt.Errorf("create exports table: %w", err)
	}
	return nil
}

func (r *ExportRepository) Create(ctx context.Context, export *domain.Export) (int64, error) {
	now := time.Now().UTC()
	export.CreatedAt = now
	export.UpdatedAt = now
	if export.Status == "" {
		export.Status = domain.ExportStatusPending
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO exports (user_id, export_key, status, entry_count, location, object_key, error_message, created_at, updated_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		export.UserID,
		export.Key,
		string(export.Status),
		export.EntryCount,
		export.Location,
		export.ObjectKey,
		export.ErrorMessage,
		export.CreatedAt,
		export.UpdatedAt,
		nullTime(export.CompletedAt),
	)
	if err != nil {
		return 0, classifyInsert("export", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("export last insert id: %w", err)
	}
	export.ID = id
	return id, nil
}

func (r *ExportRepository) Get(ctx context.Context, id int64) (*domain.Export, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+exportColumns+`
FROM exports
WHERE id=?`,
		id,
	)
	return scanExport(row)
}

func (r *ExportRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Export, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+exportColumns+`
FROM exports
WHERE user_id=?
ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	return collectExports(rows)
}

func (r *ExportRepository) ListByStatuses(ctx context.Context, statuses ...domain.ExportStatus) ([]domain.Export, error) {
	if len(statuses) == 0 {
		return []domain.Export{}, nil
	}

	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}

	query := fmt.Sprintf(`
SELECT %s
FROM exports
WHERE status IN (%s)
ORDER BY id ASC`, exportColumns, placeholders(len(statuses)))

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exports by status: %w", err)
	}
	return collectExports(rows)
}

func (r *ExportRepository) UpdateStatus(ctx context.Context, id int64, status domain.ExportStatus, errorMessage *string) error {
	now := time.Now().UTC()
	msg := ""
	if errorMessage != nil {
		msg = *errorMessage
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE exports
SET status=?, error_message=?, updated_at=?
WHERE id=?`,
		string(status),
		msg,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update export status: %w", err)
	}
	return nil
}

func (r *ExportRepository) MarkCompleted(ctx context.Context, id int64, location, objectKey string, entryCount int, completedAt time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE exports
SET status=?, location=?, object_key=?, entry_count=?, error_message='', completed_at=?, updated_at=?
WHERE id=?`,
		string(domain.ExportStatusCompleted),
		location,
		objectKey,
		entryCount,
		completedAt.UTC(),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark export completed: %w", err)
	}
	return nil
}

func (r *ExportRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM exports WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete export: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("export delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("export %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func collectExports(rows *sql.Rows) ([]domain.Export, error) {
	defer rows.Close()

	var exports []domain.Export
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, *export)
	}
	return exports, rows.Err()
}

func scanExport(row scanner) (*domain.Export, error) {
	var (
		export      domain.Export
		status      string
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&export.ID,
		&export.UserID,
		&export.Key,
		&status,
		&export.EntryCount,
		&export.Location,
		&export.ObjectKey,
		&export.ErrorMessage,
		&export.CreatedAt,
		&export.UpdatedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("export: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan export: %w", err)
	}
	export.Status = domain.ExportStatus(status)
	export.CompletedAt = timePtr(completedAt)
	return &export, nil
}
