// Package progression computes XP, levels, streaks and quest state from
// journaling events. It performs no I/O: every call takes an explicit state
// and returns a new one.
package progression

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gamify-journal/internal/domain"
)

var (
	// ErrInvalidEvent marks an out-of-order or foreign entry. Not retryable.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrPredicateLimitExceeded is reported when quest evaluation hits the pass cap.
	ErrPredicateLimitExceeded = errors.New("predicate evaluation limit exceeded")
)

// State is the snapshot a single update is computed against. History holds
// the user's earlier entries covering every active quest window. AsOf is the
// wall time the entry is recorded at: quests overdue at AsOf expire before
// evaluation, so a backdated entry cannot complete a quest whose deadline has
// already passed. A zero AsOf means the entry time.
type State struct {
	Character domain.Character
	Quests    []domain.Quest
	History   []domain.JournalEntry
	AsOf      time.Time
}

// Result is the outcome of RecordEntry. Quests is the full updated set and
// Changed only those whose status moved. Warning is non-fatal.
type Result struct {
	Character domain.Character
	Quests    []domain.Quest
	Changed   []domain.Quest
	Entry     domain.JournalEntry
	Events    []Event
	Unsettled []int64
	Warning   error
}

type Engine struct {
	rules Rules
}

func New(rules Rules) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("progression rules: %w", err)
	}
	rules.Location = rules.location()
	return &Engine{rules: rules}, nil
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// RecordEntry applies a new journal entry to the state.
func (e *Engine) RecordEntry(state State, entry domain.JournalEntry) (Result, error) {
	if err := checkOwnership(state, entry); err != nil {
		return Result{}, err
	}
	if last := state.Character.LastActiveAt; last != nil && entry.CreatedAt.Before(*last) {
		return Result{}, fmt.Errorf("%w: entry at %s precedes last activity at %s",
			ErrInvalidEvent, entry.CreatedAt.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	u := &update{
		rules:     e.rules,
		character: state.Character.Clone(),
		quests:    cloneQuests(state.Quests),
		changed:   map[int64]bool{},
	}
	u.character.Level = e.rules.Levels.LevelFor(u.character.XP)

	u.applyStreak(entry.CreatedAt)
	at := entry.CreatedAt
	u.character.LastActiveAt = &at

	entryXP := e.rules.EntryXP(u.character.Streak, entry.Content)
	u.award(entryXP, SourceEntry, nil)

	asOf := entry.CreatedAt
	if state.AsOf.After(asOf) {
		asOf = state.AsOf
	}
	u.expire(asOf)

	history := make([]domain.JournalEntry, 0, len(state.History)+1)
	history = append(history, state.History...)
	history = append(history, entry)
	u.resolveQuests(history, entry.CreatedAt)

	entry.XPEarned = u.character.XP - state.Character.XP
	return u.result(entry), nil
}

// ExpireQuests moves every overdue active quest to expired.
func (e *Engine) ExpireQuests(quests []domain.Quest, now time.Time) ([]domain.Quest, []Event) {
	u := &update{rules: e.rules, quests: cloneQuests(quests), changed: map[int64]bool{}}
	u.expire(now)
	return u.changedQuests(), u.events
}

// Replay folds entries, oldest first, through RecordEntry starting from the
// given character and quests. Each entry is applied as of its RecordedAt.
func (e *Engine) Replay(character domain.Character, quests []domain.Quest, entries []domain.JournalEntry) (Result, error) {
	ordered := make([]domain.JournalEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	state := State{Character: character, Quests: quests}
	final := Result{Character: character.Clone(), Quests: cloneQuests(quests)}
	changed := map[int64]domain.Quest{}
	for _, entry := range ordered {
		state.AsOf = entry.RecordedAt
		res, err := e.RecordEntry(state, entry)
		if err != nil {
			return Result{}, fmt.Errorf("replay entry %d: %w", entry.ID, err)
		}
		state.Character = res.Character
		state.Quests = res.Quests
		state.History = append(state.History, res.Entry)
		final.Events = append(final.Events, res.Events...)
		for _, q := range res.Changed {
			changed[q.ID] = q
		}
		if res.Warning != nil {
			final.Warning = res.Warning
			final.Unsettled = res.Unsettled
		}
		final.Entry = res.Entry
	}
	final.Character = state.Character
	final.Quests = state.Quests
	for _, q := range state.Quests {
		if _, ok := changed[q.ID]; ok {
			final.Changed = append(final.Changed, q)
		}
	}
	return final, nil
}

func checkOwnership(state State, entry domain.JournalEntry) error {
	owner := state.Character.UserID
	if entry.UserID != owner {
		return fmt.Errorf("%w: entry belongs to user %d, character to user %d", ErrInvalidEvent, entry.UserID, owner)
	}
	for _, q := range state.Quests {
		if q.UserID != owner {
			return fmt.Errorf("%w: quest %d belongs to user %d, character to user %d", ErrInvalidEvent, q.ID, q.UserID, owner)
		}
	}
	for _, h := range state.History {
		if h.UserID != owner {
			return fmt.Errorf("%w: history entry %d belongs to user %d", ErrInvalidEvent, h.ID, h.UserID)
		}
	}
	return nil
}

func cloneQuests(in []domain.Quest) []domain.Quest {
	out := make([]domain.Quest, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type update struct {
	rules     Rules
	character domain.Character
	quests    []domain.Quest
	changed   map[int64]bool
	events    []Event
	unsettled []int64
	warning   error
}

func (u *update) applyStreak(at time.Time) {
	ch := &u.character
	if ch.LastActiveAt == nil || ch.Streak == 0 {
		ch.Streak = 1
		u.events = append(u.events, Event{Kind: EventStreakStarted, Streak: 1})
	} else {
		loc := u.rules.location()
		switch gap := dayNumber(at, loc) - dayNumber(*ch.LastActiveAt, loc); {
		case gap == 0:
		case gap == 1:
			ch.Streak++
			u.events = append(u.events, Event{Kind: EventStreakExtended, Streak: ch.Streak})
		default:
			prev := ch.Streak
			ch.Streak = 1
			u.events = append(u.events, Event{Kind: EventStreakBroken, Streak: 1, PreviousStreak: prev})
		}
	}
	if ch.Streak > ch.LongestStreak {
		ch.LongestStreak = ch.Streak
	}
}

// award adds XP and emits one level-up per threshold crossed.
func (u *update) award(xp int64, source string, q *domain.Quest) {
	if xp <= 0 {
		return
	}
	ev := Event{Kind: EventXPAwarded, XP: xp, Source: source}
	if q != nil {
		ev.QuestID = q.ID
		ev.QuestTitle = q.Title
	}
	u.events = append(u.events, ev)

	before := u.character.Level
	u.character.XP += xp
	after := u.rules.Levels.LevelFor(u.character.XP)
	for level := before + 1; level <= after; level++ {
		u.events = append(u.events, Event{Kind: EventLevelUp, Level: level})
	}
	u.character.Level = after
}

func (u *update) expire(now time.Time) {
	for i := range u.quests {
		q := &u.quests[i]
		if !q.Overdue(now) {
			continue
		}
		q.Status = domain.QuestStatusExpired
		at := *q.Deadline
		q.ExpiredAt = &at
		u.changed[q.ID] = true
		u.events = append(u.events, Event{Kind: EventQuestExpired, QuestID: q.ID, QuestTitle: q.Title})
	}
}

// resolveQuests runs the fixed point over active quests. Completions inside
// a pass are visible to later quests in the same pass.
func (u *update) resolveQuests(history []domain.JournalEntry, now time.Time) {
	ev := &evaluator{
		loc:       u.rules.location(),
		character: &u.character,
		history:   history,
		completed: map[string]bool{},
		now:       now,
	}
	for _, q := range u.quests {
		if q.Status == domain.QuestStatusCompleted {
			ev.completed[q.TemplateKey] = true
		}
	}

	passes := u.rules.MaxPredicatePasses
	for pass := 0; pass < passes; pass++ {
		progressed := false
		for i := range u.quests {
			q := &u.quests[i]
			if !pending(q, now) || !ev.eval(q.Predicate, q) {
				continue
			}
			q.Status = domain.QuestStatusCompleted
			at := now
			q.CompletedAt = &at
			u.changed[q.ID] = true
			ev.completed[q.TemplateKey] = true
			u.events = append(u.events, Event{Kind: EventQuestCompleted, QuestID: q.ID, QuestTitle: q.Title, XP: q.RewardXP})
			u.award(q.RewardXP, SourceQuest, q)
			progressed = true
		}
		if !progressed {
			return
		}
	}

	for i := range u.quests {
		q := &u.quests[i]
		if pending(q, now) && ev.eval(q.Predicate, q) {
			u.unsettled = append(u.unsettled, q.ID)
		}
	}
	if len(u.unsettled) > 0 {
		u.warning = fmt.Errorf("%w: %d passes, quests %v left active", ErrPredicateLimitExceeded, passes, u.unsettled)
	}
}

// pending reports whether q is active and was already accepted at now.
func pending(q *domain.Quest, now time.Time) bool {
	return q.Status == domain.QuestStatusActive && !q.AcceptedAt.After(now)
}

func (u *update) changedQuests() []domain.Quest {
	var out []domain.Quest
	for _, q := range u.quests {
		if u.changed[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

func (u *update) result(entry domain.JournalEntry) Result {
	return Result{
		Character: u.character,
		Quests:    u.quests,
		Changed:   u.changedQuests(),
		Entry:     entry,
		Events:    u.events,
		Unsettled: u.unsettled,
		Warning:   u.warning,
	}
}
