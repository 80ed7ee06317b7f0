package model

import (
	"time"
)

// SyncRun summarizes one completed sync.
type SyncRun struct {
	ID         string    `db:"id" json:"id"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
	Fetched    int       `db:"fetched" json:"fetched"`
	Added      int       `db:"added" json:"added"`
	Updated    int       `db:"updated" json:"updated"`
	Skipped    int       `db:"skipped" json:"skipped"`
	Total      int       `db:"total" json:"total"`
}
