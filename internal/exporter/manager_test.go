package exporter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/repository/sqlite"
	"gamify-journal/internal/storage"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (s *memoryStorage) PutObject(ctx context.Context, body io.Reader, opts storage.PutOptions) (string, error) {
	if s.failPut != nil {
		return "", s.failPut
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[opts.Key] = data
	s.mu.Unlock()
	return "s3://" + opts.Bucket + "/" + opts.Key, nil
}

func (s *memoryStorage) DeleteObject(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStorage) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *memoryStorage) GetObjectURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	return "https://example.test/" + bucket + "/" + key, nil
}

func setup(t *testing.T) (*sqlite.Repositories, *domain.User) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repos := sqlite.NewRepositories(db)
	require.NoError(t, repos.Init(context.Background()))

	user := &domain.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x"}
	_, err = repos.Users.Create(context.Background(), user)
	require.NoError(t, err)
	return repos, user
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitForStatus(t *testing.T, repos *sqlite.Repositories, id int64, want domain.ExportStatus) *domain.Export {
	t.Helper()
	var got *domain.Export
	require.Eventually(t, func() bool {
		export, err := repos.Exports.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = export
		return export.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestManagerUploadsJSONLines(t *testing.T) {
	repos, user := setup(t)
	ctx := context.Background()
	for i, content := range []string{"first", "second"} {
		_, err := repos.Entries.Create(ctx, &domain.JournalEntry{
			UserID:    user.ID,
			Title:     "day",
			Content:   content,
			CreatedAt: time.Date(2026, 3, 1+i, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	store := newMemoryStorage()
	m := NewManager(Config{Bucket: "journals", KeyPrefix: "/exports/", Logger: quietLogger()}, repos.Exports, repos.Entries, store)
	require.NoError(t, m.Start(ctx))
	defer m.Shutdown()

	export := &domain.Export{UserID: user.ID, Key: "abc"}
	_, err := repos.Exports.Create(ctx, export)
	require.NoError(t, err)
	require.NoError(t, m.Enqueue(ctx, export.ID))

	done := waitForStatus(t, repos, export.ID, domain.ExportStatusCompleted)
	assert.Equal(t, 2, done.EntryCount)
	assert.Equal(t, "exports/user-1/abc.jsonl", done.ObjectKey)
	assert.Equal(t, "s3://journals/exports/user-1/abc.jsonl", done.Location)

	store.mu.Lock()
	data := store.objects["exports/user-1/abc.jsonl"]
	store.mu.Unlock()
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"content":"first"`)
	assert.Contains(t, string(lines[1]), `"created_at":"2026-03-02T09:00:00Z"`)
}

func TestManagerMarksFailure(t *testing.T) {
	repos, user := setup(t)
	ctx := context.Background()

	store := newMemoryStorage()
	store.failPut = errors.New("bucket unavailable")
	m := NewManager(Config{Bucket: "journals", Logger: quietLogger()}, repos.Exports, repos.Entries, store)
	require.NoError(t, m.Start(ctx))
	defer m.Shutdown()

	export := &domain.Export{UserID: user.ID, Key: "abc"}
	_, err := repos.Exports.Create(ctx, export)
	require.NoError(t, err)
	require.NoError(t, m.Resume(ctx))

	failed := waitForStatus(t, repos, export.ID, domain.ExportStatusFailed)
	assert.Contains(t, failed.ErrorMessage, "bucket unavailable")
}

func TestStartRequiresStorage(t *testing.T) {
	repos, _ := setup(t)
	m := NewManager(Config{Bucket: "journals"}, repos.Exports, repos.Entries, nil)
	assert.Error(t, m.Start(context.Background()))
	assert.Error(t, m.Enqueue(context.Background(), 1))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "user-7/k.jsonl", ObjectKey("", 7, "k"))
	assert.Equal(t, "a/b/user-7/", UserPrefix("/a/b/", 7))
}
