// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const runTimeout = time.Minute

// QuestExpirer moves overdue quests to expired.
type QuestExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	expirer QuestExpirer
	logger  *logrus.Logger
	now     func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the quest expiry job under schedule, which accepts the standard
// five-field syntax and descriptors such as "@every 1m".
func New(schedule string, expirer QuestExpirer, logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scheduler{
		expirer: expirer,
		logger:  logger,
		now:     time.Now,
	}
	s.cron = cron.New(
		cron.WithLogger(cron.PrintfLogger(logger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(schedule, s.expireQuests); err != nil {
		return nil, fmt.Errorf("schedule quest expiry %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the schedule and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce performs one expiry sweep immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	return s.expirer.ExpireOverdue(ctx, s.now().UTC())
}

func (s *Scheduler) expireQuests() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("quest expiry failed")
		return
	}
	if n > 0 {
		s.logger.WithField("expired", n).Info("expired overdue quests")
	}
}
