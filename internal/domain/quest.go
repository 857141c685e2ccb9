package domain

import (
	"errors"
	"fmt"
	"time"
)

type QuestStatus string

const (
	QuestStatusActive    QuestStatus = "active"
	QuestStatusCompleted QuestStatus = "completed"
	QuestStatusExpired   QuestStatus = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s QuestStatus) Terminal() bool {
	return s == QuestStatusCompleted || s == QuestStatusExpired
}

// ParseQuestStatus validates a status filter value.
func ParseQuestStatus(s string) (QuestStatus, error) {
	switch QuestStatus(s) {
	case QuestStatusActive, QuestStatusCompleted, QuestStatusExpired:
		return QuestStatus(s), nil
	}
	return "", fmt.Errorf("unknown quest status %q", s)
}

type PredicateKind string

const (
	PredicateEntryCount      PredicateKind = "entry_count"
	PredicateStreak          PredicateKind = "streak"
	PredicateWordCount       PredicateKind = "word_count"
	PredicateTopic           PredicateKind = "topic"
	PredicateLevel           PredicateKind = "level"
	PredicateQuestsCompleted PredicateKind = "quests_completed"
	PredicateAll             PredicateKind = "all"
	PredicateAny             PredicateKind = "any"
)

// Predicate is a quest completion rule. Only the fields relevant to Kind are set.
type Predicate struct {
	Kind       PredicateKind `json:"kind"`
	Count      int           `json:"count,omitempty"`
	WindowDays int           `json:"window_days,omitempty"`
	MinWords   int           `json:"min_words,omitempty"`
	Keywords   []string      `json:"keywords,omitempty"`
	Level      int           `json:"level,omitempty"`
	QuestKeys  []string      `json:"quest_keys,omitempty"`
	Children   []Predicate   `json:"children,omitempty"`
}

const maxPredicateDepth = 8

// Validate checks that the predicate is well formed.
func (p Predicate) Validate() error {
	return p.validate(0)
}

func (p Predicate) validate(depth int) error {
	if depth > maxPredicateDepth {
		return errors.New("predicate nesting too deep")
	}
	switch p.Kind {
	case PredicateEntryCount:
		if p.Count <= 0 {
			return errors.New("entry_count requires a positive count")
		}
		if p.WindowDays < 0 {
			return errors.New("entry_count window must not be negative")
		}
	case PredicateStreak:
		if p.Count <= 0 {
			return errors.New("streak requires a positive count")
		}
	case PredicateWordCount:
		if p.MinWords <= 0 {
			return errors.New("word_count requires positive min_words")
		}
	case PredicateTopic:
		if len(p.Keywords) == 0 {
			return errors.New("topic requires at least one keyword")
		}
	case PredicateLevel:
		if p.Level <= 1 {
			return errors.New("level requires a level above 1")
		}
	case PredicateQuestsCompleted:
		if len(p.QuestKeys) == 0 {
			return errors.New("quests_completed requires quest keys")
		}
	case PredicateAll, PredicateAny:
		if len(p.Children) == 0 {
			return fmt.Errorf("%s requires children", p.Kind)
		}
		for _, child := range p.Children {
			if err := child.validate(depth + 1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	return nil
}

// QuestTemplate is a catalog quest users can accept.
type QuestTemplate struct {
	ID           int64
	Key          string
	Title        string
	Description  string
	Predicate    Predicate
	RewardXP     int64
	DurationDays int
	CreatedAt    time.Time
}

// Quest is a user's accepted instance of a template.
type Quest struct {
	ID          int64
	UserID      int64
	TemplateID  int64
	TemplateKey string
	Title       string
	Description string
	Predicate   Predicate
	RewardXP    int64
	Status      QuestStatus
	AcceptedAt  time.Time
	Deadline    *time.Time
	CompletedAt *time.Time
	ExpiredAt   *time.Time
}

// Overdue reports whether an active quest's deadline is before t.
func (q Quest) Overdue(t time.Time) bool {
	return q.Status == QuestStatusActive && q.Deadline != nil && t.After(*q.Deadline)
}
