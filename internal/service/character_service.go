package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/lock"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/repository"
)

const maxStatValue = 1000

// CharacterSheet is a character plus where it stands on the level table.
type CharacterSheet struct {
	Character   domain.Character
	NextLevelXP int64
	MaxLevel    bool
}

// ReplayReport compares the stored character with one rebuilt from history.
type ReplayReport struct {
	Stored     domain.Character
	Replayed   domain.Character
	EntryCount int
	Consistent bool
	Events     []progression.Event
}

// CharacterUpdate holds optional changes. Nil fields are left alone.
type CharacterUpdate struct {
	Name  *string
	Class *string
}

type CharacterService interface {
	Create(ctx context.Context, userID int64, name, class string) (*CharacterSheet, error)
	Get(ctx context.Context, userID int64) (*CharacterSheet, error)
	Update(ctx context.Context, userID int64, update CharacterUpdate) (*CharacterSheet, error)
	MergeStats(ctx context.Context, userID int64, stats map[string]int) (*CharacterSheet, error)
	Replay(ctx context.Context, userID int64) (*ReplayReport, error)
}

type characterService struct {
	characters repository.CharacterRepository
	entries    repository.EntryRepository
	quests     repository.QuestRepository
	engine     *progression.Engine
	locker     lock.Locker
	logger     *logrus.Logger
}

func NewCharacterService(
	characters repository.CharacterRepository,
	entries repository.EntryRepository,
	quests repository.QuestRepository,
	engine *progression.Engine,
	locker lock.Locker,
	logger *logrus.Logger,
) CharacterService {
	return &characterService{
		characters: characters,
		entries:    entries,
		quests:     quests,
		engine:     engine,
		locker:     locker,
		logger:     orStandard(logger),
	}
}

func (s *characterService) Create(ctx context.Context, userID int64, name, class string) (*CharacterSheet, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	cc, err := domain.ParseCharacterClass(strings.ToLower(strings.TrimSpace(class)))
	if err != nil {
		return nil, invalid("%v", err)
	}

	ch := &domain.Character{
		UserID: userID,
		Name:   name,
		Class:  cc,
		Stats:  cc.DefaultStats(),
		Level:  1,
	}
	if _, err := s.characters.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCharacterExists
		}
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "class": cc}).Info("character created")
	return s.sheet(*ch), nil
}

func (s *characterService) Get(ctx context.Context, userID int64) (*CharacterSheet, error) {
	ch, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.sheet(*ch), nil
}

// Update renames the character or changes its class. A class change reseeds
// stats with the new class defaults.
func (s *characterService) Update(ctx context.Context, userID int64, update CharacterUpdate) (*CharacterSheet, error) {
	var (
		name  string
		class domain.CharacterClass
		err   error
	)
	if update.Name != nil {
		if name, err = validName(*update.Name); err != nil {
			return nil, err
		}
	}
	if update.Class != nil {
		if class, err = domain.ParseCharacterClass(strings.ToLower(strings.TrimSpace(*update.Class))); err != nil {
			return nil, invalid("%v", err)
		}
	}

	return s.mutate(ctx, userID, func(ch *domain.Character) {
		if name != "" {
			ch.Name = name
		}
		if class != "" && class != ch.Class {
			ch.Class = class
			ch.Stats = class.DefaultStats()
		}
	})
}

func (s *characterService) MergeStats(ctx context.Context, userID int64, stats map[string]int) (*CharacterSheet, error) {
	if len(stats) == 0 {
		return nil, invalid("stats must not be empty")
	}
	clean := make(map[string]int, len(stats))
	for k, v := range stats {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			return nil, invalid("stat names must not be empty")
		}
		if v < 0 || v > maxStatValue {
			return nil, invalid("stat %s must be between 0 and %d", key, maxStatValue)
		}
		clean[key] = v
	}

	return s.mutate(ctx, userID, func(ch *domain.Character) {
		if ch.Stats == nil {
			ch.Stats = map[string]int{}
		}
		for k, v := range clean {
			ch.Stats[k] = v
		}
	})
}

// Replay rebuilds progression from a fresh character of the same class over
// the user's full history and quest set. Nothing is written.
func (s *characterService) Replay(ctx context.Context, userID int64) (*ReplayReport, error) {
	stored, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	quests, err := s.quests.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load quests: %w", err)
	}

	fresh := domain.Character{
		ID:     stored.ID,
		UserID: stored.UserID,
		Name:   stored.Name,
		Class:  stored.Class,
		Stats:  stored.Stats,
		Level:  1,
	}
	reset := make([]domain.Quest, len(quests))
	for i, q := range quests {
		q.Status = domain.QuestStatusActive
		q.CompletedAt = nil
		q.ExpiredAt = nil
		reset[i] = q
	}

	res, err := s.engine.Replay(fresh, reset, entries)
	if err != nil {
		return nil, err
	}
	if res.Warning != nil {
		s.logger.WithError(res.Warning).WithField("user_id", userID).Warn("replay left quests unsettled")
	}

	replayed := res.Character
	consistent := replayed.XP == stored.XP &&
		replayed.Level == stored.Level &&
		replayed.Streak == stored.Streak &&
		replayed.LongestStreak == stored.LongestStreak
	return &ReplayReport{
		Stored:     *stored,
		Replayed:   replayed,
		EntryCount: len(entries),
		Consistent: consistent,
		Events:     res.Events,
	}, nil
}

func (s *characterService) mutate(ctx context.Context, userID int64, apply func(ch *domain.Character)) (*CharacterSheet, error) {
	release, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	ch, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	apply(ch)
	if err := s.characters.Save(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceConflict, err)
		}
		return nil, err
	}
	return s.sheet(*ch), nil
}

func (s *characterService) load(ctx context.Context, userID int64) (*domain.Character, error) {
	ch, err := s.characters.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCharacterRequired
		}
		return nil, err
	}
	return ch, nil
}

func (s *characterService) sheet(ch domain.Character) *CharacterSheet {
	return newSheet(s.engine.Rules().Levels, ch)
}

func newSheet(levels progression.LevelTable, ch domain.Character) *CharacterSheet {
	next, ok := levels.Threshold(ch.Level + 1)
	return &CharacterSheet{Character: ch, NextLevelXP: next, MaxLevel: !ok}
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name is required")
	}
	if len(name) > 64 {
		return "", invalid("name must be at most 64 characters")
	}
	return name, nil
}

func userLockKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
