package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/exporter"
	"gamify-journal/internal/repository"
	"gamify-journal/internal/storage"
)

const downloadURLTTL = 15 * time.Minute

// ExportQueue schedules export jobs; exporter.Manager satisfies it.
type ExportQueue interface {
	Enqueue(ctx context.Context, exportID int64) error
	Cancel(ctx context.Context, exportID int64) error
}

type ExportService interface {
	Request(ctx context.Context, userID int64) (*domain.Export, error)
	List(ctx context.Context, userID int64) ([]domain.Export, error)
	Get(ctx context.Context, userID, id int64) (*domain.Export, error)
	DownloadURL(ctx context.Context, userID, id int64) (string, error)
	Delete(ctx context.Context, userID, id int64) error
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// ExportConfig names the bucket layout exports are written to.
type ExportConfig struct {
	Bucket    string
	KeyPrefix string
}

type exportService struct {
	exports repository.ExportRepository
	queue   ExportQueue
	storage storage.Service
	cfg     ExportConfig
	logger  *logrus.Logger
}

// NewExportService wires export bookkeeping. A nil store or queue disables
// exports and every call returns ErrStorageDisabled.
func NewExportService(exports repository.ExportRepository, queue ExportQueue, store storage.Service, cfg ExportConfig, logger *logrus.Logger) ExportService {
	return &exportService{
		exports: exports,
		queue:   queue,
		storage: store,
		cfg:     cfg,
		logger:  orStandard(logger),
	}
}

func (s *exportService) enabled() bool {
	return s.storage != nil && s.queue != nil && s.cfg.Bucket != ""
}

func (s *exportService) Request(ctx context.Context, userID int64) (*domain.Export, error) {
	if !s.enabled() {
		return nil, ErrStorageDisabled
	}
	export := &domain.Export{
		UserID: userID,
		Key:    uuid.NewString(),
		Status: domain.ExportStatusPending,
	}
	if _, err := s.exports.Create(ctx, export); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, export.ID); err != nil {
		msg := err.Error()
		if updateErr := s.exports.UpdateStatus(ctx, export.ID, domain.ExportStatusFailed, &msg); updateErr != nil {
			s.logger.WithError(updateErr).WithField("export_id", export.ID).Error("mark export failed")
		}
		return nil, fmt.Errorf("enqueue export: %w", err)
	}
	return export, nil
}

func (s *exportService) List(ctx context.Context, userID int64) ([]domain.Export, error) {
	exports, err := s.exports.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exports == nil {
		exports = []domain.Export{}
	}
	return exports, nil
}

// Get hides exports owned by someone else behind ErrNotFound.
func (s *exportService) Get(ctx context.Context, userID, id int64) (*domain.Export, error) {
	export, err := s.exports.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if export.UserID != userID {
		return nil, fmt.Errorf("export %d: %w", id, repository.ErrNotFound)
	}
	return export, nil
}

func (s *exportService) DownloadURL(ctx context.Context, userID, id int64) (string, error) {
	if !s.enabled() {
		return "", ErrStorageDisabled
	}
	export, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if export.Status != domain.ExportStatusCompleted || export.ObjectKey == "" {
		return "", invalid("export %d is %s", id, export.Status)
	}
	return s.storage.GetObjectURL(ctx, s.cfg.Bucket, export.ObjectKey, downloadURLTTL)
}

func (s *exportService) Delete(ctx context.Context, userID, id int64) error {
	export, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if s.queue != nil {
		if err := s.queue.Cancel(ctx, id); err != nil {
			return fmt.Errorf("cancel export: %w", err)
		}
	}
	if s.enabled() {
		// A job may have finished while it was being cancelled, so the key is
		// read again and falls back to where the worker would have written.
		current, err := s.exports.Get(ctx, id)
		if err != nil {
			return err
		}
		key := current.ObjectKey
		if key == "" {
			key = exporter.ObjectKey(s.cfg.KeyPrefix, userID, export.Key)
		}
		if err := s.storage.DeleteObject(ctx, s.cfg.Bucket, key); err != nil {
			return err
		}
	}
	return s.exports.Delete(ctx, id)
}

// DeleteAllForUser removes every remote archive of a user. Rows go with the
// account through the database cascade.
func (s *exportService) DeleteAllForUser(ctx context.Context, userID int64) error {
	if !s.enabled() {
		return nil
	}
	exports, err := s.exports.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, export := range exports {
		if err := s.queue.Cancel(ctx, export.ID); err != nil {
			return fmt.Errorf("cancel export %d: %w", export.ID, err)
		}
	}
	return s.storage.DeletePrefix(ctx, s.cfg.Bucket, exporter.UserPrefix(s.cfg.KeyPrefix, userID))
}
