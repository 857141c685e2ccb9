package repository

import (
	"context"
	"time"

	"gamify-journal/internal/domain"
)

// EntryRepository stores immutable journal entries.
type EntryRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, entry *domain.JournalEntry) (int64, error)
	Get(ctx context.Context, userID, id int64) (*domain.JournalEntry, error)
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]domain.JournalEntry, error)
	// ListByUserBetween returns entries with from <= created_at <= to, oldest first.
	ListByUserBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.JournalEntry, error)
	ListAllByUser(ctx context.Context, userID int64) ([]domain.JournalEntry, error)
}
