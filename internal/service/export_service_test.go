package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/repository"
	"gamify-journal/internal/storage"
)

type recordingQueue struct {
	mu        sync.Mutex
	enqueued  []int64
	cancelled []int64
	onCancel  func(exportID int64)
}

func (q *recordingQueue) Enqueue(ctx context.Context, exportID int64) error {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, exportID)
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) Cancel(ctx context.Context, exportID int64) error {
	q.mu.Lock()
	q.cancelled = append(q.cancelled, exportID)
	q.mu.Unlock()
	if q.onCancel != nil {
		q.onCancel(exportID)
	}
	return nil
}

type objectStore struct {
	storage.Service
	objects map[string]bool
}

func (s *objectStore) PutObject(ctx context.Context, body io.Reader, opts storage.PutOptions) (string, error) {
	s.objects[opts.Key] = true
	return "s3://" + opts.Bucket + "/" + opts.Key, nil
}

func (s *objectStore) DeleteObject(ctx context.Context, bucket, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *objectStore) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *objectStore) GetObjectURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	return "https://" + bucket + ".example.test/" + key, nil
}

func TestExportsDisabledWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "ada")
	exports := NewExportService(env.repos.Exports, nil, nil, ExportConfig{}, env.logger)

	_, err := exports.Request(context.Background(), uid)
	assert.ErrorIs(t, err, ErrStorageDisabled)
	_, err = exports.DownloadURL(context.Background(), uid, 1)
	assert.ErrorIs(t, err, ErrStorageDisabled)

	list, err := exports.List(context.Background(), uid)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExportLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.user(t, "ada")
	bob := env.user(t, "bob")

	queue := &recordingQueue{}
	store := &objectStore{objects: map[string]bool{}}
	exports := NewExportService(env.repos.Exports, queue, store, ExportConfig{Bucket: "journals", KeyPrefix: "exports"}, env.logger)

	export, err := exports.Request(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, domain.ExportStatusPending, export.Status)
	assert.NotEmpty(t, export.Key)
	assert.Equal(t, []int64{export.ID}, queue.enqueued)

	_, err = exports.Get(ctx, bob, export.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = exports.DownloadURL(ctx, ada, export.ID)
	assert.ErrorIs(t, err, ErrValidation)

	key := "exports/user-1/" + export.Key + ".jsonl"
	store.objects[key] = true
	require.NoError(t, env.repos.Exports.MarkCompleted(ctx, export.ID, "s3://journals/"+key, key, 3, base))

	url, err := exports.DownloadURL(ctx, ada, export.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://journals.example.test/"+key, url)

	require.NoError(t, exports.Delete(ctx, ada, export.ID))
	assert.Empty(t, store.objects)
	assert.Equal(t, []int64{export.ID}, queue.cancelled)
	_, err = exports.Get(ctx, ada, export.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteAllExportsForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.user(t, "ada")

	store := &objectStore{objects: map[string]bool{
		"exports/user-1/a.jsonl":  true,
		"exports/user-1/b.jsonl":  true,
		"exports/user-10/c.jsonl": true,
	}}
	exports := NewExportService(env.repos.Exports, &recordingQueue{}, store, ExportConfig{Bucket: "journals", KeyPrefix: "exports"}, env.logger)

	require.NoError(t, exports.DeleteAllForUser(ctx, ada))
	assert.Equal(t, map[string]bool{"exports/user-10/c.jsonl": true}, store.objects)
}

func TestDeleteExportRemovesArchiveFinishedDuringCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.user(t, "ada")

	queue := &recordingQueue{}
	store := &objectStore{objects: map[string]bool{"exports/user-1/keep.jsonl": true}}
	exports := NewExportService(env.repos.Exports, queue, store, ExportConfig{Bucket: "journals", KeyPrefix: "exports"}, env.logger)

	export, err := exports.Request(ctx, ada)
	require.NoError(t, err)
	key := "exports/user-1/" + export.Key + ".jsonl"
	queue.onCancel = func(id int64) {
		store.objects[key] = true
		require.NoError(t, env.repos.Exports.MarkCompleted(ctx, id, "s3://journals/"+key, key, 1, base))
	}

	require.NoError(t, exports.Delete(ctx, ada, export.ID))
	assert.Equal(t, map[string]bool{"exports/user-1/keep.jsonl": true}, store.objects)
	_, err = exports.Get(ctx, ada, export.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteExportRemovesArchiveUploadedBeforeCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.user(t, "ada")

	queue := &recordingQueue{}
	store := &objectStore{objects: map[string]bool{}}
	exports := NewExportService(env.repos.Exports, queue, store, ExportConfig{Bucket: "journals", KeyPrefix: "exports"}, env.logger)

	export, err := exports.Request(ctx, ada)
	require.NoError(t, err)
	queue.onCancel = func(int64) {
		store.objects["exports/user-1/"+export.Key+".jsonl"] = true
	}

	require.NoError(t, exports.Delete(ctx, ada, export.ID))
	assert.Empty(t, store.objects)
}
