package domain

import (
	"context"
	"time"
)

// HistoryEntry is one successful question/answer exchange.
type HistoryEntry struct {
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a capped, most-recent-first list of exchanges.
// Index 0 is the newest entry.
type History interface {
	Append(ctx context.Context, question, response string) error
	List(ctx context.Context) ([]HistoryEntry, error)
	Delete(ctx context.Context, index int) error
	Clear(ctx context.Context) error
}
