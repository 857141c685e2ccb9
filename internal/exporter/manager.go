package exporter

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/metrics"
	"gamify-journal/internal/repository"
	"gamify-journal/internal/storage"
)

// Manager runs journal export jobs on a bounded worker pool.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, exportID int64) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context, exportID int64) error
}

type Config struct {
	Bucket        string
	KeyPrefix     string
	MaxConcurrent int
	Logger        *logrus.Logger
	Metrics       *metrics.Metrics
}

type manager struct {
	cfg     Config
	exports repository.ExportRepository
	entries repository.EntryRepository
	storage storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[int64]*jobHandle
}

type jobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, exports repository.ExportRepository, entries repository.EntryRepository, storage storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	return &manager{
		cfg:     cfg,
		exports: exports,
		entries: entries,
		storage: storage,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[int64]*jobHandle),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.storage == nil {
		return fmt.Errorf("export storage is required")
	}
	if m.cfg.Bucket == "" {
		return fmt.Errorf("export bucket is required")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("export manager started, bucket: %s", m.cfg.Bucket)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("export manager stopped")
}

func (m *manager) Enqueue(ctx context.Context, exportID int64) error {
	if m.ctx == nil {
		return fmt.Errorf("export manager is not started")
	}
	export, err := m.exports.Get(ctx, exportID)
	if err != nil {
		return err
	}
	m.spawnJob(*export)
	return nil
}

// Resume restarts exports left pending or running by a previous process.
func (m *manager) Resume(ctx context.Context) error {
	exports, err := m.exports.ListByStatuses(ctx,
		domain.ExportStatusPending,
		domain.ExportStatusRunning,
	)
	if err != nil {
		return err
	}

	for i := range exports {
		m.spawnJob(exports[i])
	}
	return nil
}

func (m *manager) Cancel(ctx context.Context, exportID int64) error {
	handle, ok := m.getJobHandle(exportID)
	if !ok {
		return nil
	}
	handle.cancel()

	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) spawnJob(export domain.Export) {
	jobCtx, cancel := context.WithCancel(m.ctx)
	handle := &jobHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if !m.registerJob(export.ID, handle) {
		cancel()
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancel()
			m.unregisterJob(export.ID)
			close(handle.done)
		}()

		select {
		case <-m.ctx.Done():
			return
		case <-jobCtx.Done():
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.handleJob(jobCtx, &export)
		}
	}()
}

// registerJob reports false when the export already has a running job.
func (m *manager) registerJob(id int64, handle *jobHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		return false
	}
	m.active[id] = handle
	return true
}

func (m *manager) unregisterJob(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *manager) getJobHandle(id int64) (*jobHandle, bool) {
	m.mu.Lock()
	handle, ok := m.active[id]
	m.mu.Unlock()
	return handle, ok
}

func (m *manager) handleJob(ctx context.Context, export *domain.Export) {
	logger := m.cfg.Logger.WithFields(logrus.Fields{"export_id": export.ID, "user_id": export.UserID})
	started := time.Now()

	switch export.Status {
	case domain.ExportStatusCompleted, domain.ExportStatusFailed:
		logger.Debug("export already finished, skipping")
		return
	}

	if err := m.exports.UpdateStatus(ctx, export.ID, domain.ExportStatusRunning, nil); err != nil {
		logger.Errorf("update status failed: %v", err)
		return
	}
	export.Status = domain.ExportStatusRunning

	entries, err := m.entries.ListAllByUser(ctx, export.UserID)
	if err != nil {
		m.failExport(ctx, export.ID, started, fmt.Errorf("load entries: %w", err))
		return
	}

	var buf bytes.Buffer
	if err := writeJSONLines(&buf, entries); err != nil {
		m.failExport(ctx, export.ID, started, err)
		return
	}

	key := ObjectKey(m.cfg.KeyPrefix, export.UserID, export.Key)
	logger.Infof("upload started: %d entries, %s", len(entries), formatBytes(int64(buf.Len())))

	location, err := m.storage.PutObject(ctx, bytes.NewReader(buf.Bytes()), storage.PutOptions{
		Bucket:      m.cfg.Bucket,
		Key:         key,
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("export cancelled")
			return
		}
		m.failExport(ctx, export.ID, started, fmt.Errorf("upload: %w", err))
		return
	}

	if err := m.exports.MarkCompleted(ctx, export.ID, location, key, len(entries), time.Now()); err != nil {
		logger.Errorf("mark completed: %v", err)
		return
	}
	export.Status = domain.ExportStatusCompleted
	m.cfg.Metrics.ObserveExport(string(domain.ExportStatusCompleted), time.Since(started))
	logger.Infof("export uploaded to %s", location)
}

func (m *manager) failExport(ctx context.Context, exportID int64, started time.Time, failErr error) {
	msg := failErr.Error()
	if err := m.exports.UpdateStatus(ctx, exportID, domain.ExportStatusFailed, &msg); err != nil {
		m.cfg.Logger.WithField("export_id", exportID).Errorf("persist failure status: %v", err)
	}
	m.cfg.Metrics.ObserveExport(string(domain.ExportStatusFailed), time.Since(started))
	m.cfg.Logger.WithField("export_id", exportID).Error(msg)
}

// ObjectKey is where an export archive lives inside the bucket.
func ObjectKey(prefix string, userID int64, exportKey string) string {
	return UserPrefix(prefix, userID) + exportKey + ".jsonl"
}

// UserPrefix groups all archives of one user. It always ends with a slash.
func UserPrefix(prefix string, userID int64) string {
	return path.Join(strings.Trim(prefix, "/"), fmt.Sprintf("user-%d", userID)) + "/"
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}
