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

const (
	createQuestTemplatesTable = `
CREATE TABLE IF NOT EXISTS quest_templates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	quest_key TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	predicate TEXT NOT NULL,
	reward_xp INTEGER NOT NULL DEFAULT 0,
	duration_days INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
`
	createQuestsTable = `
CREATE TABLE IF NOT EXISTS quests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	template_id INTEGER NOT NULL,
	template_key TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	predicate TEXT NOT NULL,
	reward_xp INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	accepted_at DATETIME NOT NULL,
	deadline DATETIME NULL,
	completed_at DATETIME NULL,
	expired_at DATETIME NULL,
	UNIQUE(user_id, template_id),
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY(template_id) REFERENCES quest_templates(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_quests_status_deadline ON quests(status, deadline);
`
)

const (
	templateColumns = `id, quest_key, title, description, predicate, reward_xp, duration_days, created_at`
	questColumns    = `id, user_id, template_id, template_key, title, description, predicate, reward_xp, status, accepted_at, deadline, completed_at, expired_at`
)

type QuestRepository struct {
	db *sql.DB
}

func NewQuestRepository(db *sql.DB) repository.QuestRepository {
	return &QuestRepository{db: db}
}

func (r *QuestRepository) Init(ctx context.Context) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, createQuestTemplatesTable); err != nil {
		return fmt.Errorf("create quest templates table: %w", err)
	}
	if _, err := conn(ctx, r.db).ExecContext(ctx, createQuestsTable); err != nil {
		return fmt.Errorf("create quests table: %w", err)
	}
	return nil
}

func (r *QuestRepository) CreateTemplate(ctx context.Context, tmpl *domain.QuestTemplate) (int64, error) {
	tmpl.CreatedAt = time.Now().UTC()
	predicate, err := encodeJSON(tmpl.Predicate)
	if err != nil {
		return 0, err
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO quest_templates (quest_key, title, description, predicate, reward_xp, duration_days, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tmpl.Key,
		tmpl.Title,
		tmpl.Description,
		predicate,
		tmpl.RewardXP,
		tmpl.DurationDays,
		tmpl.CreatedAt,
	)
	if err != nil {
		return 0, classifyInsert("quest template", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("quest template last insert id: %w", err)
	}
	tmpl.ID = id
	return id, nil
}

func (r *QuestRepository) GetTemplate(ctx context.Context, id int64) (*domain.QuestTemplate, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+templateColumns+`
FROM quest_templates
WHERE id = ?`,
		id,
	)
	return scanTemplate(row)
}

func (r *QuestRepository) GetTemplateByKey(ctx context.Context, key string) (*domain.QuestTemplate, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+templateColumns+`
FROM quest_templates
WHERE quest_key = ?`,
		key,
	)
	return scanTemplate(row)
}

// ListAvailable returns templates the user has not accepted yet.
func (r *QuestRepository) ListAvailable(ctx context.Context, userID int64, offset, limit int) ([]domain.QuestTemplate, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+templateColumns+`
FROM quest_templates t
WHERE NOT EXISTS (SELECT 1 FROM quests q WHERE q.template_id = t.id AND q.user_id = ?)
ORDER BY id ASC
LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query available quests: %w", err)
	}
	defer rows.Close()

	var templates []domain.QuestTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	return templates, rows.Err()
}

func (r *QuestRepository) Create(ctx context.Context, quest *domain.Quest) (int64, error) {
	if quest.Status == "" {
		quest.Status = domain.QuestStatusActive
	}
	quest.AcceptedAt = quest.AcceptedAt.UTC()
	predicate, err := encodeJSON(quest.Predicate)
	if err != nil {
		return 0, err
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO quests (user_id, template_id, template_key, title, description, predicate, reward_xp, status, accepted_at, deadline, completed_at, expired_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quest.UserID,
		quest.TemplateID,
		quest.TemplateKey,
		quest.Title,
		quest.Description,
		predicate,
		quest.RewardXP,
		string(quest.Status),
		quest.AcceptedAt,
		nullTime(quest.Deadline),
		nullTime(quest.CompletedAt),
		nullTime(quest.ExpiredAt),
	)
	if err != nil {
		return 0, classifyInsert("quest", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("quest last insert id: %w", err)
	}
	quest.ID = id
	return id, nil
}

func (r *QuestRepository) ListByUser(ctx context.Context, userID int64, statuses ...domain.QuestStatus) ([]domain.Quest, error) {
	query := `
SELECT ` + questColumns + `
FROM quests
WHERE user_id = ?`
	args := []any{userID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY id ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	return collectQuests(rows)
}

// ListOverdue returns active quests whose deadline passed before now, across users.
func (r *QuestRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Quest, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT `+questColumns+`
FROM quests
WHERE status = ? AND deadline IS NOT NULL AND deadline < ?
ORDER BY user_id ASC, id ASC
LIMIT ?`,
		string(domain.QuestStatusActive), now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query overdue quests: %w", err)
	}
	return collectQuests(rows)
}

func (r *QuestRepository) SaveAll(ctx context.Context, quests []domain.Quest) error {
	db := conn(ctx, r.db)
	for _, q := range quests {
		res, err := db.ExecContext(ctx, `
UPDATE quests
SET status = ?, completed_at = ?, expired_at = ?
WHERE id = ? AND status = ?`,
			string(q.Status),
			nullTime(q.CompletedAt),
			nullTime(q.ExpiredAt),
			q.ID,
			string(domain.QuestStatusActive),
		)
		if err != nil {
			return fmt.Errorf("update quest %d: %w", q.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("quest rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("quest %d is no longer active: %w", q.ID, repository.ErrConflict)
		}
	}
	return nil
}

func collectQuests(rows *sql.Rows) ([]domain.Quest, error) {
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

func scanTemplate(row scanner) (*domain.QuestTemplate, error) {
	var (
		tmpl      domain.QuestTemplate
		predicate string
	)
	if err := row.Scan(
		&tmpl.ID,
		&tmpl.Key,
		&tmpl.Title,
		&tmpl.Description,
		&predicate,
		&tmpl.RewardXP,
		&tmpl.DurationDays,
		&tmpl.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quest template: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan quest template: %w", err)
	}
	if err := decodeJSON(predicate, &tmpl.Predicate); err != nil {
		return nil, fmt.Errorf("quest template %s predicate: %w", tmpl.Key, err)
	}
	return &tmpl, nil
}

func scanQuest(row scanner) (*domain.Quest, error) {
	var (
		q           domain.Quest
		predicate   string
		status      string
		deadline    sql.NullTime
		completedAt sql.NullTime
		expiredAt   sql.NullTime
	)
	if err := row.Scan(
		&q.ID,
		&q.UserID,
		&q.TemplateID,
		&q.TemplateKey,
		&q.Title,
		&q.Description,
		&predicate,
		&q.RewardXP,
		&status,
		&q.AcceptedAt,
		&deadline,
		&completedAt,
		&expiredAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quest: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan quest: %w", err)
	}
	q.Status = domain.QuestStatus(status)
	q.AcceptedAt = q.AcceptedAt.UTC()
	q.Deadline = timePtr(deadline)
	q.CompletedAt = timePtr(completedAt)
	q.ExpiredAt = timePtr(expiredAt)
	if err := decodeJSON(predicate, &q.Predicate); err != nil {
		return nil, fmt.Errorf("quest %d predicate: %w", q.ID, err)
	}
	return &q, nil
}
