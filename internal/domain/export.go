package domain

import "time"

type ExportStatus string

const (
	ExportStatusPending   ExportStatus = "pending"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
)

// Export tracks a journal archive uploaded to object storage.
type Export struct {
	ID           int64
	UserID       int64
	Key          string
	Status       ExportStatus
	EntryCount   int
	Location     string
	ObjectKey    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
