package repository

import (
	"context"

	"gamify-journal/internal/domain"
)

// CharacterRepository persists the one-to-one progression sheet of a user.
type CharacterRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, character *domain.Character) (int64, error)
	GetByUserID(ctx context.Context, userID int64) (*domain.Character, error)
	// Save writes the character if its Version still matches the stored row
	// and bumps Version on success. A mismatch yields ErrConflict.
	Save(ctx context.Context, character *domain.Character) error
}
