package domain

import "time"

// Folder groups documents. A nil ParentID places it at the root.
type Folder struct {
	ID        int64
	UserID    int64
	ParentID  *int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a free-form rich text note, separate from journal entries.
type Document struct {
	ID        int64
	UserID    int64
	FolderID  *int64
	Name      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
