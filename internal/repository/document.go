package repository

import (
	"context"

	"gamify-journal/internal/domain"
)

// DocumentRepository stores folders and the documents filed in them.
// Deleting a folder removes its subfolders and documents.
type DocumentRepository interface {
	Init(ctx context.Context) error

	CreateFolder(ctx context.Context, folder *domain.Folder) (int64, error)
	GetFolder(ctx context.Context, id int64) (*domain.Folder, error)
	UpdateFolder(ctx context.Context, folder *domain.Folder) error
	DeleteFolder(ctx context.Context, id int64) error
	ListFolders(ctx context.Context, userID int64) ([]domain.Folder, error)

	CreateDocument(ctx context.Context, doc *domain.Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (*domain.Document, error)
	UpdateDocument(ctx context.Context, doc *domain.Document) error
	DeleteDocument(ctx context.Context, id int64) error
	ListDocuments(ctx context.Context, userID int64) ([]domain.Document, error)
}
