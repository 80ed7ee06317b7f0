package service

import (
	"errors"
	"time"

	"github.com/runboard/runboard/internal/dataset"
	"github.com/runboard/runboard/internal/model"
)

const (
	DataStatusOK          = "ok"
	DataStatusEmpty       = "empty"
	DataStatusNeedsResync = "needs_resync"
)

type DatasetReader interface {
	Snapshot() (*dataset.Snapshot, error)
}

// Dashboard is everything the dashboard page shows.
type Dashboard struct {
	Status      string        `json:"status"`
	MonthlyGoal float64       `json:"monthly_goal"`
	LastUpdate  *time.Time    `json:"last_update"`
	SyncDue     bool          `json:"sync_due"`
	Summary     *Summary      `json:"summary"`
	Goal        *GoalProgress `json:"goal"`
	Monthly     []PeriodTotal `json:"monthly"`
	Weekly      []PeriodTotal `json:"weekly"`
	Records     *Records      `json:"records"`
	Patterns    *Patterns     `json:"patterns"`
	Skipped     int           `json:"skipped_rows"`
}

// DashboardService is the read side of the app. It never writes the
// dataset; the only file it changes is the monthly goal in settings.
type DashboardService struct {
	data     DatasetReader
	settings SettingsStore
	stats    *StatsService
	syncHour int
	now      func() time.Time
}

func NewDashboardService(data DatasetReader, settings SettingsStore, stats *StatsService, syncHour int) *DashboardService {
	return &DashboardService{
		data:     data,
		settings: settings,
		stats:    stats,
		syncHour: syncHour,
		now:      time.Now,
	}
}

// Dashboard builds the page model. A missing or incompatible dataset is
// not an error: the result carries DataStatusEmpty or
// DataStatusNeedsResync and zero metrics.
func (s *DashboardService) Dashboard(rangeName string) (*Dashboard, error) {
	settings, err := s.settings.Load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := &Dashboard{
		Status:      DataStatusOK,
		MonthlyGoal: settings.MonthlyGoal,
		LastUpdate:  settings.LastUpdate,
		SyncDue:     ShouldSync(settings.LastUpdate, now, s.syncHour),
	}

	var activities []model.Activity
	snap, err := s.data.Snapshot()
	switch {
	case errors.Is(err, dataset.ErrNoDataset):
		d.Status = DataStatusEmpty
	case errors.Is(err, dataset.ErrNeedsResync):
		d.Status = DataStatusNeedsResync
		d.SyncDue = true
	case err != nil:
		return nil, err
	default:
		activities = snap.Activities
		d.Skipped = len(snap.Skipped)
	}

	runs := s.stats.Runs(activities)
	if d.Status == DataStatusOK && len(runs) == 0 {
		d.Status = DataStatusEmpty
	}

	d.Summary = s.stats.Summary(runs, rangeName, now)
	d.Goal = s.stats.GoalProgress(runs, settings.MonthlyGoal, now)
	d.Monthly = s.stats.MonthlyTotals(runs)
	d.Weekly = s.stats.WeeklyTotals(runs)
	d.Records = s.stats.Records(runs, now)
	d.Patterns = s.stats.Patterns(runs)

	return d, nil
}

// RecentRuns returns up to limit runs, newest first. Missing or
// incompatible data yields an empty list.
func (s *DashboardService) RecentRuns(limit int) ([]model.Activity, error) {
	snap, err := s.data.Snapshot()
	if errors.Is(err, dataset.ErrNoDataset) || errors.Is(err, dataset.ErrNeedsResync) {
		return []model.Activity{}, nil
	}
	if err != nil {
		return nil, err
	}

	runs := s.stats.Runs(snap.Activities)
	dataset.SortNewestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *DashboardService) Settings() (*model.Settings, error) {
	return s.settings.Load()
}

func (s *DashboardService) SetMonthlyGoal(goal float64) (*model.Settings, error) {
	return s.settings.SetMonthlyGoal(goal)
}
