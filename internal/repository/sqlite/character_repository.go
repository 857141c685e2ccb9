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

const createCharactersTable = `
CREATE TABLE IF NOT EXISTS characters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL UNIQUE,
	name TEXT NOT NULL,
	class TEXT NOT NULL,
	stats TEXT NOT NULL DEFAULT '{}',
	level INTEGER NOT NULL DEFAULT 1,
	xp INTEGER NOT NULL DEFAULT 0,
	streak INTEGER NOT NULL DEFAULT 0,
	longest_streak INTEGER NOT NULL DEFAULT 0,
	last_active_at DATETIME,
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
`

const characterColumns = `id, user_id, name, class, stats, level, xp, streak, longest_streak, last_active_at, version, created_at, updated_at`

type CharacterRepository struct {
	db *sql.DB
}

func NewCharacterRepository(db *sql.DB) repository.CharacterRepository {
	return &CharacterRepository{db: db}
}

func (r *CharacterRepository) Init(ctx context.Context) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, createCharactersTable); err != nil {
		return fmt.Errorf("create characters table: %w", err)
	}
	return nil
}

func (r *CharacterRepository) Create(ctx context.Context, character *domain.Character) (int64, error) {
	now := time.Now().UTC()
	character.CreatedAt = now
	character.UpdatedAt = now
	character.Version = 1
	if character.Level < 1 {
		character.Level = 1
	}

	stats, err := encodeJSON(character.Stats)
	if err != nil {
		return 0, err
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO characters (user_id, name, class, stats, level, xp, streak, longest_streak, last_active_at, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		character.UserID,
		character.Name,
		string(character.Class),
		stats,
		character.Level,
		character.XP,
		character.Streak,
		character.LongestStreak,
		nullTime(character.LastActiveAt),
		character.Version,
		character.CreatedAt,
		character.UpdatedAt,
	)
	if err != nil {
		return 0, classifyInsert("character", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("character last insert id: %w", err)
	}
	character.ID = id
	return id, nil
}

func (r *CharacterRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Character, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+characterColumns+`
FROM characters
WHERE user_id = ?`,
		userID,
	)
	return scanCharacter(row)
}

func (r *CharacterRepository) Save(ctx context.Context, character *domain.Character) error {
	stats, err := encodeJSON(character.Stats)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE characters
SET name = ?, class = ?, stats = ?, level = ?, xp = ?, streak = ?, longest_streak = ?,
	last_active_at = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`,
		character.Name,
		string(character.Class),
		stats,
		character.Level,
		character.XP,
		character.Streak,
		character.LongestStreak,
		nullTime(character.LastActiveAt),
		now,
		character.ID,
		character.Version,
	)
	if err != nil {
		return fmt.Errorf("update character: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("character rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("character %d at version %d: %w", character.ID, character.Version, repository.ErrConflict)
	}
	character.Version++
	character.UpdatedAt = now
	return nil
}

func scanCharacter(row scanner) (*domain.Character, error) {
	var (
		character  domain.Character
		class      string
		stats      string
		lastActive sql.NullTime
	)
	if err := row.Scan(
		&character.ID,
		&character.UserID,
		&character.Name,
		&class,
		&stats,
		&character.Level,
		&character.XP,
		&character.Streak,
		&character.LongestStreak,
		&lastActive,
		&character.Version,
		&character.CreatedAt,
		&character.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("character: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan character: %w", err)
	}
	character.Class = domain.CharacterClass(class)
	character.LastActiveAt = timePtr(lastActive)
	character.Stats = map[string]int{}
	if err := decodeJSON(stats, &character.Stats); err != nil {
		return nil, fmt.Errorf("character stats: %w", err)
	}
	return &character, nil
}
