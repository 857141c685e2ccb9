package progression

import (
	"strings"
	"time"

	"gamify-journal/internal/domain"
)

// evaluator resolves predicates against the state of a single update.
type evaluator struct {
	loc       *time.Location
	character *domain.Character
	history   []domain.JournalEntry
	completed map[string]bool
	now       time.Time
}

func (e *evaluator) eval(p domain.Predicate, q *domain.Quest) bool {
	switch p.Kind {
	case domain.PredicateEntryCount:
		return e.countEntries(q, p.WindowDays) >= p.Count
	case domain.PredicateStreak:
		return e.character.Streak >= p.Count
	case domain.PredicateWordCount:
		return e.anyEntry(q, func(entry domain.JournalEntry) bool {
			return len(strings.Fields(entry.Content)) >= p.MinWords
		})
	case domain.PredicateTopic:
		return e.anyEntry(q, func(entry domain.JournalEntry) bool {
			return mentions(entry, p.Keywords)
		})
	case domain.PredicateLevel:
		return e.character.Level >= p.Level
	case domain.PredicateQuestsCompleted:
		for _, key := range p.QuestKeys {
			if !e.completed[key] {
				return false
			}
		}
		return true
	case domain.PredicateAll:
		for _, child := range p.Children {
			if !e.eval(child, q) {
				return false
			}
		}
		return len(p.Children) > 0
	case domain.PredicateAny:
		for _, child := range p.Children {
			if e.eval(child, q) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// eligible reports whether an entry counts toward q.
func (e *evaluator) eligible(entry domain.JournalEntry, q *domain.Quest) bool {
	return !entry.CreatedAt.Before(q.AcceptedAt) && !entry.CreatedAt.After(e.now)
}

func (e *evaluator) countEntries(q *domain.Quest, windowDays int) int {
	today := dayNumber(e.now, e.loc)
	n := 0
	for _, entry := range e.history {
		if !e.eligible(entry, q) {
			continue
		}
		if windowDays > 0 && today-dayNumber(entry.CreatedAt, e.loc) >= int64(windowDays) {
			continue
		}
		n++
	}
	return n
}

func (e *evaluator) anyEntry(q *domain.Quest, match func(domain.JournalEntry) bool) bool {
	for _, entry := range e.history {
		if e.eligible(entry, q) && match(entry) {
			return true
		}
	}
	return false
}

func mentions(entry domain.JournalEntry, keywords []string) bool {
	text := strings.ToLower(entry.Title + "\n" + entry.Content)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
