package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gamify-journal/internal/domain"
)

// record is one line of an export archive.
type record struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Mood       string   `json:"mood,omitempty"`
	Tags       []string `json:"tags"`
	XPEarned   int64    `json:"xp_earned"`
	CreatedAt  string   `json:"created_at"`
	RecordedAt string   `json:"recorded_at"`
}

func writeJSONLines(w io.Writer, entries []domain.JournalEntry) error {
	enc := json.NewEncoder(w)
	for _, entry := range entries {
		tags := entry.Tags
		if tags == nil {
			tags = []string{}
		}
		if err := enc.Encode(record{
			ID:         entry.ID,
			Title:      entry.Title,
			Content:    entry.Content,
			Mood:       entry.Mood,
			Tags:       tags,
			XPEarned:   entry.XPEarned,
			CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339),
			RecordedAt: entry.RecordedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("encode entry %d: %w", entry.ID, err)
		}
	}
	return nil
}
