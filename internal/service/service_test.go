package service

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/lock"
	"gamify-journal/internal/metrics"
	"gamify-journal/internal/progression"
	"gamify-journal/internal/repository"
	"gamify-journal/internal/repository/sqlite"
)

var base = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	repos      *sqlite.Repositories
	engine     *progression.Engine
	metrics    *metrics.Metrics
	locker     lock.Locker
	logger     *logrus.Logger
	clock      *clock
	journal    JournalService
	quests     QuestService
	characters CharacterService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := sqlite.NewRepositories(db)
	require.NoError(t, repos.Init(context.Background()))

	engine, err := progression.New(progression.DefaultRules())
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	env := &testEnv{
		repos:   repos,
		engine:  engine,
		metrics: metrics.New(),
		locker:  lock.NewMemoryLocker(),
		logger:  logger,
		clock:   &clock{now: base},
	}
	env.journal = env.newJournal(repos.Characters, 2)
	env.quests, err = NewQuestService(QuestDeps{
		Quests:  repos.Quests,
		Tx:      repos.Tx,
		Engine:  engine,
		Locker:  env.locker,
		Metrics: env.metrics,
		Logger:  logger,
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Now:     env.clock.Now,
	})
	require.NoError(t, err)
	env.characters = NewCharacterService(repos.Characters, repos.Entries, repos.Quests, engine, env.locker, logger)
	return env
}

func (e *testEnv) newJournal(characters repository.CharacterRepository, retries int) JournalService {
	return NewJournalService(JournalDeps{
		Characters: characters,
		Entries:    e.repos.Entries,
		Quests:     e.repos.Quests,
		Tx:         e.repos.Tx,
		Engine:     e.engine,
		Locker:     e.locker,
		Metrics:    e.metrics,
		Logger:     e.logger,
		MaxRetries: retries,
		Now:        e.clock.Now,
	})
}

func (e *testEnv) user(t *testing.T, name string) int64 {
	t.Helper()
	id, err := e.repos.Users.Create(context.Background(), &domain.User{
		Username:     name,
		Email:        name + "@example.com",
		DisplayName:  name,
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) hero(t *testing.T, name string) int64 {
	t.Helper()
	id := e.user(t, name)
	_, err := e.characters.Create(context.Background(), id, "Sir "+name, "warrior")
	require.NoError(t, err)
	return id
}
