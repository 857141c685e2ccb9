package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	last  atomic.Int64
	err   error
}

func (e *countingExpirer) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	e.calls.Add(1)
	e.last.Store(now.Unix())
	if e.err != nil {
		return 0, e.err
	}
	return 2, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("every now and then", &countingExpirer{}, quietLogger())
	assert.Error(t, err)
}

func TestRunOnceUsesClock(t *testing.T) {
	expirer := &countingExpirer{}
	s, err := New("@every 1h", expirer, quietLogger())
	require.NoError(t, err)
	fixed := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, fixed.Unix(), expirer.last.Load())
}

func TestRunOnceReturnsError(t *testing.T) {
	boom := errors.New("boom")
	s, err := New("@every 1h", &countingExpirer{err: boom}, quietLogger())
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSchedulerRunsJob(t *testing.T) {
	expirer := &countingExpirer{}
	s, err := New("@every 1s", expirer, quietLogger())
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return expirer.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()

	calls := expirer.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, expirer.calls.Load())
}
