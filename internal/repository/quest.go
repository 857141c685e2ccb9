package repository

import (
	"context"
	"time"

	"gamify-journal/internal/domain"
)

// QuestRepository manages the quest catalog and per-user quest instances.
type QuestRepository interface {
	Init(ctx context.Context) error
	CreateTemplate(ctx context.Context, tmpl *domain.QuestTemplate) (int64, error)
	GetTemplate(ctx context.Context, id int64) (*domain.QuestTemplate, error)
	GetTemplateByKey(ctx context.Context, key string) (*domain.QuestTemplate, error)
	ListAvailable(ctx context.Context, userID int64, offset, limit int) ([]domain.QuestTemplate, error)

	Create(ctx context.Context, quest *domain.Quest) (int64, error)
	ListByUser(ctx context.Context, userID int64, statuses ...domain.QuestStatus) ([]domain.Quest, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Quest, error)
	// SaveAll persists status transitions. Only active rows are updated; a
	// quest that already left the active state yields ErrConflict.
	SaveAll(ctx context.Context, quests []domain.Quest) error
}
