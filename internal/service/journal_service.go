package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/lock"
	"gamify-journal/internal/metrics"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/repository"
)

const (
	maxTitleLength   = 200
	maxContentLength = 50000
	maxTags          = 10
	maxTagLength     = 32
	maxMoodLength    = 32
	// MaxListLimit caps page sizes for list endpoints.
	MaxListLimit = 100
	futureSkew   = 5 * time.Minute
)

// SubmitEntryInput is a new journal entry. A nil Timestamp means now.
type SubmitEntryInput struct {
	Title     string
	Content   string
	Mood      string
	Tags      []string
	Timestamp *time.Time
}

// SubmitResult is what a submission changed.
type SubmitResult struct {
	Entry     domain.JournalEntry
	Character CharacterSheet
	Quests    []domain.Quest
	Events    []progression.Event
}

type JournalService interface {
	SubmitEntry(ctx context.Context, userID int64, in SubmitEntryInput) (*SubmitResult, error)
	ListEntries(ctx context.Context, userID int64, skip, limit int) ([]domain.JournalEntry, error)
	GetEntry(ctx context.Context, userID, id int64) (*domain.JournalEntry, error)
}

// JournalDeps groups the collaborators of the journal service.
type JournalDeps struct {
	Characters repository.CharacterRepository
	Entries    repository.EntryRepository
	Quests     repository.QuestRepository
	Tx         repository.TxRunner
	Engine     *progression.Engine
	Locker     lock.Locker
	Metrics    *metrics.Metrics
	Logger     *logrus.Logger
	MaxRetries int
	Now        func() time.Time
}

type journalService struct {
	JournalDeps
}

func NewJournalService(deps JournalDeps) JournalService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MaxRetries < 0 {
		deps.MaxRetries = 0
	}
	deps.Logger = orStandard(deps.Logger)
	return &journalService{JournalDeps: deps}
}

// SubmitEntry records an entry and applies its progression effects as one
// atomic unit. Submissions for one user are serialized by the locker; a lost
// race detected in the database is retried against fresh state.
func (s *journalService) SubmitEntry(ctx context.Context, userID int64, in SubmitEntryInput) (*SubmitResult, error) {
	started := time.Now()
	entry, err := s.buildEntry(userID, in)
	if err != nil {
		s.Metrics.ObserveSubmission(outcome(err), time.Since(started))
		return nil, err
	}

	res, err := s.submit(ctx, entry)
	s.Metrics.ObserveSubmission(outcome(err), time.Since(started))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *journalService) submit(ctx context.Context, entry domain.JournalEntry) (*SubmitResult, error) {
	release, err := s.Locker.Lock(ctx, userLockKey(entry.UserID))
	if err != nil {
		return nil, err
	}
	defer release()

	log := s.Logger.WithField("user_id", entry.UserID)
	for attempt := 0; ; attempt++ {
		res, err := s.submitOnce(ctx, entry)
		if err == nil {
			s.record(log, res)
			return res.toSubmitResult(s.Engine.Rules().Levels), nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		if attempt >= s.MaxRetries {
			return nil, fmt.Errorf("%w: gave up after %d attempts: %v", ErrPersistenceConflict, attempt+1, err)
		}
		s.Metrics.SubmissionRetried()
		log.WithError(err).WithField("attempt", attempt+1).Warn("retrying entry submission")
	}
}

type submission struct {
	progression.Result
}

func (s submission) toSubmitResult(levels progression.LevelTable) *SubmitResult {
	return &SubmitResult{
		Entry:     s.Entry,
		Character: *newSheet(levels, s.Character),
		Quests:    s.Changed,
		Events:    s.Events,
	}
}

func (s *journalService) submitOnce(ctx context.Context, entry domain.JournalEntry) (submission, error) {
	var out submission
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		ch, err := s.Characters.GetByUserID(ctx, entry.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCharacterRequired
			}
			return err
		}
		quests, err := s.Quests.ListByUser(ctx, entry.UserID, domain.QuestStatusActive, domain.QuestStatusCompleted)
		if err != nil {
			return err
		}
		history, err := s.history(ctx, entry, quests)
		if err != nil {
			return err
		}

		res, err := s.Engine.RecordEntry(progression.State{
			Character: *ch,
			Quests:    quests,
			History:   history,
			AsOf:      entry.RecordedAt,
		}, entry)
		if err != nil {
			return err
		}

		if _, err := s.Entries.Create(ctx, &res.Entry); err != nil {
			return err
		}
		if err := s.Characters.Save(ctx, &res.Character); err != nil {
			return err
		}
		if err := s.Quests.SaveAll(ctx, res.Changed); err != nil {
			return err
		}
		out = submission{Result: res}
		return nil
	})
	return out, err
}

// history loads entries from the earliest active quest acceptance up to the
// new entry; quests never look further back.
func (s *journalService) history(ctx context.Context, entry domain.JournalEntry, quests []domain.Quest) ([]domain.JournalEntry, error) {
	var from *time.Time
	for i := range quests {
		q := quests[i]
		if q.Status != domain.QuestStatusActive {
			continue
		}
		if from == nil || q.AcceptedAt.Before(*from) {
			at := q.AcceptedAt
			from = &at
		}
	}
	if from == nil || from.After(entry.CreatedAt) {
		return nil, nil
	}
	return s.Entries.ListByUserBetween(ctx, entry.UserID, *from, entry.CreatedAt)
}

func (s *journalService) record(log *logrus.Entry, res submission) {
	if res.Warning != nil {
		s.Metrics.PredicateLimitHit()
		log.WithError(res.Warning).WithField("unsettled", res.Unsettled).Warn("quest evaluation stopped at pass limit")
	}
	for _, ev := range res.Events {
		switch ev.Kind {
		case progression.EventXPAwarded:
			s.Metrics.AddXP(ev.Source, ev.XP)
		case progression.EventLevelUp:
			s.Metrics.LevelUp()
		case progression.EventQuestCompleted:
			s.Metrics.QuestTransition(string(domain.QuestStatusCompleted))
		case progression.EventQuestExpired:
			s.Metrics.QuestTransition(string(domain.QuestStatusExpired))
		}
	}
	log.WithFields(logrus.Fields{
		"entry_id":  res.Entry.ID,
		"xp_earned": res.Entry.XPEarned,
		"level":     res.Character.Level,
		"streak":    res.Character.Streak,
	}).Info("journal entry recorded")
}

func (s *journalService) buildEntry(userID int64, in SubmitEntryInput) (domain.JournalEntry, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	mood := strings.TrimSpace(in.Mood)

	if title == "" && content == "" {
		return domain.JournalEntry{}, invalid("title or content is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return domain.JournalEntry{}, invalid("title must be at most %d characters", maxTitleLength)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return domain.JournalEntry{}, invalid("content must be at most %d characters", maxContentLength)
	}
	if utf8.RuneCountInString(mood) > maxMoodLength {
		return domain.JournalEntry{}, invalid("mood must be at most %d characters", maxMoodLength)
	}
	if len(in.Tags) > maxTags {
		return domain.JournalEntry{}, invalid("at most %d tags are allowed", maxTags)
	}
	tags := make([]string, 0, len(in.Tags))
	seen := map[string]bool{}
	for _, tag := range in.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLength {
			return domain.JournalEntry{}, invalid("tag %q is longer than %d characters", tag, maxTagLength)
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	now := s.Now()
	at := now
	if in.Timestamp != nil {
		at = *in.Timestamp
		if at.After(now.Add(futureSkew)) {
			return domain.JournalEntry{}, fmt.Errorf("%w: timestamp %s is in the future", progression.ErrInvalidEvent, at.Format(time.RFC3339))
		}
	}

	return domain.JournalEntry{
		UserID:     userID,
		Title:      title,
		Content:    content,
		Mood:       mood,
		Tags:       tags,
		CreatedAt:  at.UTC(),
		RecordedAt: now.UTC(),
	}, nil
}

func (s *journalService) ListEntries(ctx context.Context, userID int64, skip, limit int) ([]domain.JournalEntry, error) {
	skip, limit = clampPage(skip, limit)
	entries, err := s.Entries.ListByUser(ctx, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	return entries, nil
}

func (s *journalService) GetEntry(ctx context.Context, userID, id int64) (*domain.JournalEntry, error) {
	return s.Entries.Get(ctx, userID, id)
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return skip, limit
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, progression.ErrInvalidEvent):
		return "rejected"
	case errors.Is(err, ErrCharacterRequired):
		return "no_character"
	case errors.Is(err, ErrPersistenceConflict):
		return "conflict"
	default:
		return "error"
	}
}
