package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/runboard/runboard/internal/model"
)

// ActivityRepository mirrors the dataset into SQL for ad-hoc queries.
type ActivityRepository interface {
	Upsert(ctx context.Context, activities []model.Activity, syncedAt time.Time) error
	Activities(ctx context.Context) ([]model.Activity, error)
	Count(ctx context.Context) (int, error)
}

type activityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) ActivityRepository {
	return &activityRepository{db: db}
}

type activityRow struct {
	ID                 int64      `db:"id"`
	Name               string     `db:"name"`
	Type               string     `db:"type"`
	StartDate          *time.Time `db:"start_date"`
	StartDateLocal     time.Time  `db:"start_date_local"`
	Distance           float64    `db:"distance"`
	MovingTime         int        `db:"moving_time"`
	ElapsedTime        int        `db:"elapsed_time"`
	TotalElevationGain float64    `db:"total_elevation_gain"`
	AverageHeartrate   *float64   `db:"average_heartrate"`
	MaxHeartrate       *float64   `db:"max_heartrate"`
	AverageSpeed       float64    `db:"average_speed"`
	MaxSpeed           float64    `db:"max_speed"`
	Extra              string     `db:"extra"`
	SyncedAt           time.Time  `db:"synced_at"`
}

// Upsert writes every activity in one transaction, replacing rows with the
// same id. Rows missing from activities are left alone, matching the
// dataset's merge rule.
func (r *activityRepository) Upsert(ctx context.Context, activities []model.Activity, syncedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit
		_ = tx.Rollback()
	}()

	query := `INSERT INTO activities (id, name, type, start_date, start_date_local, distance, moving_time,
	              elapsed_time, total_elevation_gain, average_heartrate, max_heartrate, average_speed, max_speed,
	              extra, synced_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	          ON CONFLICT (id) DO UPDATE SET
	              name = excluded.name,
	              type = excluded.type,
	              start_date = excluded.start_date,
	              start_date_local = excluded.start_date_local,
	              distance = excluded.distance,
	              moving_time = excluded.moving_time,
	              elapsed_time = excluded.elapsed_time,
	              total_elevation_gain = excluded.total_elevation_gain,
	              average_heartrate = excluded.average_heartrate,
	              max_heartrate = excluded.max_heartrate,
	              average_speed = excluded.average_speed,
	              max_speed = excluded.max_speed,
	              extra = excluded.extra,
	              synced_at = excluded.synced_at`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range activities {
		row, err := toRow(&activities[i], syncedAt)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			row.ID,
			row.Name,
			row.Type,
			row.StartDate,
			row.StartDateLocal,
			row.Distance,
			row.MovingTime,
			row.ElapsedTime,
			row.TotalElevationGain,
			row.AverageHeartrate,
			row.MaxHeartrate,
			row.AverageSpeed,
			row.MaxSpeed,
			row.Extra,
			row.SyncedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert activity %d: %w", row.ID, err)
		}
	}

	return tx.Commit()
}

func (r *activityRepository) Activities(ctx context.Context) ([]model.Activity, error) {
	var rows []activityRow
	query := `SELECT * FROM activities ORDER BY start_date_local DESC, id DESC`

	err := r.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, err
	}

	activities := make([]model.Activity, 0, len(rows))
	for i := range rows {
		a, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, nil
}

func (r *activityRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM activities`)
	return count, err
}

func toRow(a *model.Activity, syncedAt time.Time) (*activityRow, error) {
	extra := []byte("{}")
	if len(a.Extra) > 0 {
		var err error
		extra, err = json.Marshal(a.Extra)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extra fields of activity %d: %w", a.ID, err)
		}
	}

	row := &activityRow{
		ID:                 a.ID,
		Name:               a.Name,
		Type:               a.Type,
		StartDateLocal:     a.StartDateLocal,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		Extra:              string(extra),
		SyncedAt:           syncedAt,
	}
	if !a.StartDate.IsZero() {
		startDate := a.StartDate
		row.StartDate = &startDate
	}
	return row, nil
}

func fromRow(row *activityRow) (model.Activity, error) {
	a := model.Activity{
		ID:                 row.ID,
		Name:               row.Name,
		Type:               row.Type,
		StartDateLocal:     row.StartDateLocal,
		Distance:           row.Distance,
		MovingTime:         row.MovingTime,
		ElapsedTime:        row.ElapsedTime,
		TotalElevationGain: row.TotalElevationGain,
		AverageHeartrate:   row.AverageHeartrate,
		MaxHeartrate:       row.MaxHeartrate,
		AverageSpeed:       row.AverageSpeed,
		MaxSpeed:           row.MaxSpeed,
	}
	if row.StartDate != nil {
		a.StartDate = *row.StartDate
	}
	if row.Extra != "" && row.Extra != "{}" {
		err := json.Unmarshal([]byte(row.Extra), &a.Extra)
		if err != nil {
			return a, fmt.Errorf("failed to decode extra fields of activity %d: %w", row.ID, err)
		}
	}
	return a, nil
}
