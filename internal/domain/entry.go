package domain

import "time"

// JournalEntry is an immutable journal submission. CreatedAt is the event
// time the user chose; RecordedAt is when the server accepted it.
type JournalEntry struct {
	ID         int64
	UserID     int64
	Title      string
	Content    string
	Mood       string
	Tags       []string
	XPEarned   int64
	CreatedAt  time.Time
	RecordedAt time.Time
}
