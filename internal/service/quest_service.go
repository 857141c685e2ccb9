package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/lock"
	"gamify-journal/internal/metrics"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/repository"
)

const (
	templateCacheSize = 512
	expiryBatchSize   = 500
)

type QuestService interface {
	SeedTemplates(ctx context.Context) (int, error)
	Available(ctx context.Context, userID int64, skip, limit int) ([]domain.QuestTemplate, error)
	Generate(ctx context.Context) (*domain.QuestTemplate, error)
	Accept(ctx context.Context, userID, templateID int64) (*domain.Quest, error)
	ListMine(ctx context.Context, userID int64, status *domain.QuestStatus) ([]domain.Quest, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// QuestDeps groups the collaborators of the quest service.
type QuestDeps struct {
	Quests  repository.QuestRepository
	Tx      repository.TxRunner
	Engine  *progression.Engine
	Locker  lock.Locker
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
	Rand    *rand.Rand
	Now     func() time.Time
}

type questService struct {
	deps      QuestDeps
	templates *lru.Cache

	randMu sync.Mutex
}

func NewQuestService(deps QuestDeps) (QuestService, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		deps.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	deps.Logger = orStandard(deps.Logger)

	cache, err := lru.New(templateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("template cache: %w", err)
	}
	return &questService{deps: deps, templates: cache}, nil
}

// SeedTemplates inserts the built-in catalog, skipping keys already present.
func (s *questService) SeedTemplates(ctx context.Context) (int, error) {
	created := 0
	for _, tmpl := range builtinTemplates {
		if err := tmpl.Predicate.Validate(); err != nil {
			return created, fmt.Errorf("template %s: %w", tmpl.Key, err)
		}
		if _, err := s.deps.Quests.CreateTemplate(ctx, &tmpl); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}
	if created > 0 {
		s.deps.Logger.WithField("count", created).Info("quest templates seeded")
	}
	return created, nil
}

func (s *questService) Available(ctx context.Context, userID int64, skip, limit int) ([]domain.QuestTemplate, error) {
	skip, limit = clampPage(skip, limit)
	templates, err := s.deps.Quests.ListAvailable(ctx, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []domain.QuestTemplate{}
	}
	return templates, nil
}

// Generate adds a randomly drawn template to the catalog.
func (s *questService) Generate(ctx context.Context) (*domain.QuestTemplate, error) {
	s.randMu.Lock()
	tmpl := generateTemplate(s.deps.Rand)
	s.randMu.Unlock()

	if err := tmpl.Predicate.Validate(); err != nil {
		return nil, fmt.Errorf("generated template: %w", err)
	}
	if _, err := s.deps.Quests.CreateTemplate(ctx, &tmpl); err != nil {
		return nil, err
	}
	s.templates.Add(tmpl.ID, tmpl)
	return &tmpl, nil
}

func (s *questService) Accept(ctx context.Context, userID, templateID int64) (*domain.Quest, error) {
	tmpl, err := s.template(ctx, templateID)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now().UTC()
	quest := &domain.Quest{
		UserID:      userID,
		TemplateID:  tmpl.ID,
		TemplateKey: tmpl.Key,
		Title:       tmpl.Title,
		Description: tmpl.Description,
		Predicate:   tmpl.Predicate,
		RewardXP:    tmpl.RewardXP,
		Status:      domain.QuestStatusActive,
		AcceptedAt:  now,
	}
	if tmpl.DurationDays > 0 {
		deadline := now.AddDate(0, 0, tmpl.DurationDays)
		quest.Deadline = &deadline
	}

	if _, err := s.deps.Quests.Create(ctx, quest); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrQuestAlreadyAccepted
		}
		return nil, err
	}
	s.deps.Metrics.QuestTransition(string(domain.QuestStatusActive))
	s.deps.Logger.WithFields(logrus.Fields{"user_id": userID, "quest_id": quest.ID, "template": tmpl.Key}).Info("quest accepted")
	return quest, nil
}

func (s *questService) ListMine(ctx context.Context, userID int64, status *domain.QuestStatus) ([]domain.Quest, error) {
	var statuses []domain.QuestStatus
	if status != nil {
		statuses = append(statuses, *status)
	}
	quests, err := s.deps.Quests.ListByUser(ctx, userID, statuses...)
	if err != nil {
		return nil, err
	}
	if quests == nil {
		quests = []domain.Quest{}
	}
	return quests, nil
}

// ExpireOverdue moves one batch of overdue quests to expired and returns how
// many changed. Each user is processed under the same lock submissions use.
func (s *questService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.deps.Quests.ListOverdue(ctx, now, expiryBatchSize)
	if err != nil {
		return 0, err
	}

	var users []int64
	seen := map[int64]bool{}
	for _, q := range overdue {
		if !seen[q.UserID] {
			seen[q.UserID] = true
			users = append(users, q.UserID)
		}
	}

	expired := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		n, err := s.expireUser(ctx, userID, now)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				s.deps.Logger.WithError(err).WithField("user_id", userID).Warn("quest expiry raced another update")
				continue
			}
			return expired, err
		}
		expired += n
	}
	return expired, nil
}

func (s *questService) expireUser(ctx context.Context, userID int64, now time.Time) (int, error) {
	release, err := s.deps.Locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return 0, err
	}
	defer release()

	var changed []domain.Quest
	err = s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		active, err := s.deps.Quests.ListByUser(ctx, userID, domain.QuestStatusActive)
		if err != nil {
			return err
		}
		changed, _ = s.deps.Engine.ExpireQuests(active, now)
		return s.deps.Quests.SaveAll(ctx, changed)
	})
	if err != nil {
		return 0, err
	}
	for _, q := range changed {
		s.deps.Metrics.QuestTransition(string(domain.QuestStatusExpired))
		s.deps.Logger.WithFields(logrus.Fields{"user_id": userID, "quest_id": q.ID}).Info("quest expired")
	}
	return len(changed), nil
}

func (s *questService) template(ctx context.Context, id int64) (*domain.QuestTemplate, error) {
	if cached, ok := s.templates.Get(id); ok {
		if tmpl, ok := cached.(domain.QuestTemplate); ok {
			return &tmpl, nil
		}
	}
	tmpl, err := s.deps.Quests.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.templates.Add(id, *tmpl)
	return tmpl, nil
}
