package http

import (
	"time"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/service"
)

type UserResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

type CharacterResponse struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"user_id"`
	Name          string         `json:"name"`
	Class         string         `json:"character_class"`
	Stats         map[string]int `json:"stats"`
	Level         int            `json:"level"`
	XP            int64          `json:"xp"`
	Streak        int            `json:"streak"`
	LongestStreak int            `json:"longest_streak"`
	NextLevelXP   *int64         `json:"next_level_xp,omitempty"`
	MaxLevel      bool           `json:"max_level"`
	LastActiveAt  *string        `json:"last_active_at,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

type EntryResponse struct {
	ID         int64    `json:"id"`
	UserID     int64    `json:"user_id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Mood       string   `json:"mood,omitempty"`
	Tags       []string `json:"tags"`
	XPEarned   int64    `json:"xp_earned"`
	CreatedAt  string   `json:"created_at"`
	RecordedAt string   `json:"recorded_at"`
}

type EventResponse struct {
	Kind           progression.EventKind `json:"kind"`
	XP             int64                 `json:"xp,omitempty"`
	Source         string                `json:"source,omitempty"`
	Level          int                   `json:"level,omitempty"`
	Streak         int                   `json:"streak,omitempty"`
	PreviousStreak int                   `json:"previous_streak,omitempty"`
	QuestID        int64                 `json:"quest_id,omitempty"`
	QuestTitle     string                `json:"quest_title,omitempty"`
}

type SubmitResponse struct {
	Entry     EntryResponse     `json:"entry"`
	Character CharacterResponse `json:"character"`
	Quests    []QuestResponse   `json:"quests"`
	Events    []EventResponse   `json:"events"`
}

type ReplayResponse struct {
	Consistent bool              `json:"consistent"`
	EntryCount int               `json:"entry_count"`
	Stored     CharacterResponse `json:"stored"`
	Replayed   CharacterResponse `json:"replayed"`
	Events     []EventResponse   `json:"events"`
}

type QuestTemplateResponse struct {
	ID           int64            `json:"id"`
	Key          string           `json:"key"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Predicate    domain.Predicate `json:"requirements"`
	RewardXP     int64            `json:"xp_reward"`
	DurationDays int              `json:"duration_days"`
}

type QuestResponse struct {
	ID          int64              `json:"id"`
	TemplateID  int64              `json:"quest_id"`
	TemplateKey string             `json:"quest_key"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Predicate   domain.Predicate   `json:"requirements"`
	RewardXP    int64              `json:"xp_reward"`
	Status      domain.QuestStatus `json:"status"`
	AcceptedAt  string             `json:"accepted_at"`
	Deadline    *string            `json:"deadline,omitempty"`
	CompletedAt *string            `json:"completed_at,omitempty"`
	ExpiredAt   *string            `json:"expired_at,omitempty"`
}

type ExportResponse struct {
	ID           int64               `json:"id"`
	Key          string              `json:"key"`
	Status       domain.ExportStatus `json:"status"`
	EntryCount   int                 `json:"entry_count"`
	Location     string              `json:"location,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
	CompletedAt  *string             `json:"completed_at,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptional(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   formatTime(u.CreatedAt),
	}
}

func characterToResponse(ch domain.Character) CharacterResponse {
	resp := CharacterResponse{
		ID:            ch.ID,
		UserID:        ch.UserID,
		Name:          ch.Name,
		Class:         string(ch.Class),
		Stats:         ch.Stats,
		Level:         ch.Level,
		XP:            ch.XP,
		Streak:        ch.Streak,
		LongestStreak: ch.LongestStreak,
		LastActiveAt:  formatOptional(ch.LastActiveAt),
		CreatedAt:     formatTime(ch.CreatedAt),
		UpdatedAt:     formatTime(ch.UpdatedAt),
	}
	if resp.Stats == nil {
		resp.Stats = map[string]int{}
	}
	return resp
}

func sheetToResponse(sheet service.CharacterSheet) CharacterResponse {
	resp := characterToResponse(sheet.Character)
	resp.MaxLevel = sheet.MaxLevel
	if !sheet.MaxLevel {
		next := sheet.NextLevelXP
		resp.NextLevelXP = &next
	}
	return resp
}

func entryToResponse(e domain.JournalEntry) EntryResponse {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return EntryResponse{
		ID:         e.ID,
		UserID:     e.UserID,
		Title:      e.Title,
		Content:    e.Content,
		Mood:       e.Mood,
		Tags:       tags,
		XPEarned:   e.XPEarned,
		CreatedAt:  formatTime(e.CreatedAt),
		RecordedAt: formatTime(e.RecordedAt),
	}
}

func eventsToResponse(events []progression.Event) []EventResponse {
	resp := make([]EventResponse, len(events))
	for i, ev := range events {
		resp[i] = EventResponse{
			Kind:           ev.Kind,
			XP:             ev.XP,
			Source:         ev.Source,
			Level:          ev.Level,
			Streak:         ev.Streak,
			PreviousStreak: ev.PreviousStreak,
			QuestID:        ev.QuestID,
			QuestTitle:     ev.QuestTitle,
		}
	}
	return resp
}

func templateToResponse(t domain.QuestTemplate) QuestTemplateResponse {
	return QuestTemplateResponse{
		ID:           t.ID,
		Key:          t.Key,
		Title:        t.Title,
		Description:  t.Description,
		Predicate:    t.Predicate,
		RewardXP:     t.RewardXP,
		DurationDays: t.DurationDays,
	}
}

func questToResponse(q domain.Quest) QuestResponse {
	return QuestResponse{
		ID:          q.ID,
		TemplateID:  q.TemplateID,
		TemplateKey: q.TemplateKey,
		Title:       q.Title,
		Description: q.Description,
		Predicate:   q.Predicate,
		RewardXP:    q.RewardXP,
		Status:      q.Status,
		AcceptedAt:  formatTime(q.AcceptedAt),
		Deadline:    formatOptional(q.Deadline),
		CompletedAt: formatOptional(q.CompletedAt),
		ExpiredAt:   formatOptional(q.ExpiredAt),
	}
}

func questsToResponse(quests []domain.Quest) []QuestResponse {
	resp := make([]QuestResponse, len(quests))
	for i := range quests {
		resp[i] = questToResponse(quests[i])
	}
	return resp
}

func exportToResponse(e domain.Export) ExportResponse {
	return ExportResponse{
		ID:           e.ID,
		Key:          e.Key,
		Status:       e.Status,
		EntryCount:   e.EntryCount,
		Location:     e.Location,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    formatTime(e.CreatedAt),
		UpdatedAt:    formatTime(e.UpdatedAt),
		CompletedAt:  formatOptional(e.CompletedAt),
	}
}
