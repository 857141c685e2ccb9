package repository

import (
	"context"
	"time"

	"gamify-journal/internal/domain"
)

// ExportRepository tracks journal export jobs.
type ExportRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, export *domain.Export) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Export, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Export, error)
	ListByStatuses(ctx context.Context, statuses ...domain.ExportStatus) ([]domain.Export, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ExportStatus, errorMessage *string) error
	MarkCompleted(ctx context.Context, id int64, location, objectKey string, entryCount int, completedAt time.Time) error
	Delete(ctx context.Context, id int64) error
}
