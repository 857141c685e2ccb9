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

const createFoldersTable = `
CREATE TABLE IF NOT EXISTS folders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	parent_id INTEGER NULL,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY(parent_id) REFERENCES folders(id) ON DELETE CASCADE
);
`

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	folder_id INTEGER NULL,
	name TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY(folder_id) REFERENCES folders(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, folder_id);
`

const (
	folderColumns   = `id, user_id, parent_id, name, created_at, updated_at`
	documentColumns = `id, user_id, folder_id, name, content, created_at, updated_at`
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) repository.DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Init(ctx context.Context) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, createFoldersTable); err != nil {
		return fmt.Errorf("create folders table: %w", err)
	}
	if _, err := conn(ctx, r.db).ExecContext(ctx, createDocumentsTable); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CreateFolder(ctx context.Context, folder *domain.Folder) (int64, error) {
	now := time.Now().UTC()
	folder.CreatedAt = now
	folder.UpdatedAt = now

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO folders (user_id, parent_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		folder.UserID,
		nullID(folder.ParentID),
		folder.Name,
		folder.CreatedAt,
		folder.UpdatedAt,
	)
	if err != nil {
		return 0, classifyInsert("folder", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("folder last insert id: %w", err)
	}
	folder.ID = id
	return id, nil
}

func (r *DocumentRepository) GetFolder(ctx context.Context, id int64) (*domain.Folder, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+folderColumns+`
FROM folders
WHERE id=?`,
		id,
	)
	return scanFolder(row)
}

func (r *DocumentRepository) UpdateFolder(ctx context.Context, folder *domain.Folder) error {
	folder.UpdatedAt = time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE folders
SET parent_id=?, name=?, updated_at=?
WHERE id=?`,
		nullID(folder.ParentID),
		folder.Name,
		folder.UpdatedAt,
		folder.ID,
	)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}
	return expectOne(res, "folder", folder.ID)
}

func (r *DocumentRepository) DeleteFolder(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM folders WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return expectOne(res, "folder", id)
}

func (r *DocumentRepository) ListFolders(ctx context.Context, userID int64) ([]domain.Folder, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+folderColumns+`
FROM folders
WHERE user_id=?
ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	var folders []domain.Folder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *folder)
	}
	return folders, rows.Err()
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *domain.Document) (int64, error) {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO documents (user_id, folder_id, name, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		doc.UserID,
		nullID(doc.FolderID),
		doc.Name,
		doc.Content,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return 0, classifyInsert("document", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("document last insert id: %w", err)
	}
	doc.ID = id
	return id, nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id=?`,
		id,
	)
	return scanDocument(row)
}

func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE documents
SET folder_id=?, name=?, content=?, updated_at=?
WHERE id=?`,
		nullID(doc.FolderID),
		doc.Name,
		doc.Content,
		doc.UpdatedAt,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return expectOne(res, "document", doc.ID)
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return expectOne(res, "document", id)
}

func (r *DocumentRepository) ListDocuments(ctx context.Context, userID int64) ([]domain.Document, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE user_id=?
ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func expectOne(res sql.Result, what string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", what, id, repository.ErrNotFound)
	}
	return nil
}

func scanFolder(row scanner) (*domain.Folder, error) {
	var (
		folder domain.Folder
		parent sql.NullInt64
	)
	if err := row.Scan(
		&folder.ID,
		&folder.UserID,
		&parent,
		&folder.Name,
		&folder.CreatedAt,
		&folder.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("folder: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan folder: %w", err)
	}
	folder.ParentID = idPtr(parent)
	return &folder, nil
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc    domain.Document
		folder sql.NullInt64
	)
	if err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&folder,
		&doc.Name,
		&doc.Content,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.FolderID = idPtr(folder)
	return &doc, nil
}
