package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/runboard/runboard/internal/model"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	Recent(ctx context.Context, limit int) ([]*model.SyncRun, error)
}

type syncRunRepository struct {
	db *sqlx.DB
}

func NewSyncRunRepository(db *sqlx.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	query := `INSERT INTO sync_runs (id, started_at, finished_at, fetched, added, updated, skipped, total)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Fetched,
		run.Added,
		run.Updated,
		run.Skipped,
		run.Total,
	)

	return err
}

func (r *syncRunRepository) Recent(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	var runs []*model.SyncRun
	query := `SELECT * FROM sync_runs ORDER BY finished_at DESC LIMIT $1`

	err := r.db.SelectContext(ctx, &runs, query, limit)
	if err != nil {
		return nil, err
	}

	return runs, nil
}
