package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runboard/runboard/internal/dataset"
	"github.com/runboard/runboard/internal/model"
	"github.com/runboard/runboard/internal/repository"
	"github.com/runboard/runboard/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// ActivityFetcher returns the fetched activities plus the upstream records
// it could not decode at all.
type ActivityFetcher interface {
	Activities(ctx context.Context, token *oauth2.Token, limit int) ([]model.Activity, []*dataset.DataIntegrityError, error)
}

type DatasetStore interface {
	Path() string
	Load() (*dataset.Snapshot, error)
	Save(activities []model.Activity, unreadable ...dataset.Row) error
	Archive(at time.Time) (string, error)
}

type SettingsStore interface {
	Path() string
	Load() (*model.Settings, error)
	SetMonthlyGoal(goal float64) (*model.Settings, error)
	MarkSynced(at time.Time) (*model.Settings, error)
}

// SyncDeps are the collaborators of a SyncService. The mirror and backup
// fields are optional.
type SyncDeps struct {
	Tokens   TokenSource
	Fetcher  ActivityFetcher
	Dataset  DatasetStore
	Settings SettingsStore

	Activities repository.ActivityRepository
	Runs       repository.SyncRunRepository
	Backup     storage.Storage

	MaxActivities int
	Now           func() time.Time
}

type SyncOptions struct {
	// MaxActivities overrides the configured cap when positive.
	MaxActivities int
}

type SyncResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Added      int
	Updated    int
	Total      int
	Skipped    []*dataset.DataIntegrityError
	Repaired   int    // stored fields reset to zero while loading
	Archived   string // copy of an unreadable dataset taken before the rebuild
	Shared     bool   // joined a run already in progress
}

func (r *SyncResult) SkippedCount() int {
	return len(r.Skipped)
}

// SyncService fetches activities, reconciles them into the dataset file and
// records the sync time. A failure before the dataset is saved leaves both
// files untouched.
type SyncService struct {
	deps  SyncDeps
	group singleflight.Group
}

func NewSyncService(deps SyncDeps) *SyncService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SyncService{deps: deps}
}

// Run performs one sync. Calls that overlap an in-flight sync wait for it
// and share its result.
func (s *SyncService) Run(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	v, err, shared := s.group.Do("sync", func() (any, error) {
		return s.run(ctx, opts)
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*SyncResult)
	result.Shared = shared
	return &result, nil
}

func (s *SyncService) run(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	result := &SyncResult{
		RunID:     uuid.New().String(),
		StartedAt: s.deps.Now(),
	}
	log := slog.With("run_id", result.RunID)

	limit := s.deps.MaxActivities
	if opts.MaxActivities > 0 {
		limit = opts.MaxActivities
	}

	log.Info("sync started", "max_activities", limit)

	token, err := s.deps.Tokens.Token(ctx)
	if err != nil {
		log.Error("sync aborted: token", "error", err)
		return nil, err
	}

	fetched, undecodable, err := s.deps.Fetcher.Activities(ctx, token, limit)
	if err != nil {
		log.Error("sync aborted: fetch", "error", err)
		return nil, err
	}
	result.Fetched = len(fetched) + len(undecodable)

	existing, err := s.loadExisting(log, result)
	if err != nil {
		log.Error("sync aborted: load dataset", "error", err)
		return nil, err
	}

	merged := dataset.Reconcile(existing.Activities, fetched)
	result.Added = merged.Added
	result.Updated = merged.Updated
	result.Total = len(merged.Activities)
	result.Skipped = append(result.Skipped, existing.Skipped...)
	result.Skipped = append(result.Skipped, undecodable...)
	result.Skipped = append(result.Skipped, merged.Skipped...)
	for _, skipped := range result.Skipped {
		log.Warn("activity skipped", "error", skipped)
	}

	err = s.deps.Dataset.Save(merged.Activities, existing.Unreadable...)
	if err != nil {
		log.Error("sync aborted: save dataset", "error", err)
		return nil, err
	}

	result.FinishedAt = s.deps.Now()
	_, err = s.deps.Settings.MarkSynced(result.FinishedAt)
	if err != nil {
		// The dataset is already replaced; the next due check simply
		// runs another sync.
		log.Error("failed to record sync time", "error", err)
		return nil, fmt.Errorf("dataset saved but sync time not recorded: %w", err)
	}

	s.mirror(ctx, log, result, merged.Activities)
	s.backup(ctx, log, result)

	log.Info("sync completed",
		"fetched", result.Fetched,
		"added", result.Added,
		"updated", result.Updated,
		"skipped", result.SkippedCount(),
		"total", result.Total,
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	)
	return result, nil
}

// loadExisting returns the stored dataset. A missing file yields an empty
// snapshot. An incompatible file is archived first and then also treated
// as empty, so the sync rebuilds it from the fetch.
func (s *SyncService) loadExisting(log *slog.Logger, result *SyncResult) (*dataset.Snapshot, error) {
	snap, err := s.deps.Dataset.Load()
	switch {
	case errors.Is(err, dataset.ErrNoDataset):
		log.Info("no dataset yet, starting from empty", "path", s.deps.Dataset.Path())
		return &dataset.Snapshot{}, nil
	case errors.Is(err, dataset.ErrNeedsResync):
		archived, archiveErr := s.deps.Dataset.Archive(result.StartedAt)
		if archiveErr != nil {
			return nil, fmt.Errorf("dataset needs resync but could not be archived: %w", archiveErr)
		}
		log.Warn("dataset incompatible, rebuilding from fetch", "path", s.deps.Dataset.Path(), "archived", archived, "error", err)
		result.Archived = archived
		return &dataset.Snapshot{}, nil
	case err != nil:
		return nil, err
	}
	result.Repaired = len(snap.Repaired)
	return snap, nil
}

// mirror copies the dataset into the SQL mirror. The files are already
// durable, so failures are only logged.
func (s *SyncService) mirror(ctx context.Context, log *slog.Logger, result *SyncResult, activities []model.Activity) {
	if s.deps.Activities != nil {
		err := s.deps.Activities.Upsert(ctx, activities, result.FinishedAt)
		if err != nil {
			log.Error("failed to mirror activities", "error", err)
		}
	}

	if s.deps.Runs != nil {
		err := s.deps.Runs.Create(ctx, &model.SyncRun{
			ID:         result.RunID,
			StartedAt:  result.StartedAt,
			FinishedAt: result.FinishedAt,
			Fetched:    result.Fetched,
			Added:      result.Added,
			Updated:    result.Updated,
			Skipped:    result.SkippedCount(),
			Total:      result.Total,
		})
		if err != nil {
			log.Error("failed to record sync run", "error", err)
		}
	}
}

func (s *SyncService) backup(ctx context.Context, log *slog.Logger, result *SyncResult) {
	if s.deps.Backup == nil {
		return
	}
	err := storage.BackupFiles(ctx, s.deps.Backup, result.FinishedAt, s.deps.Dataset.Path(), s.deps.Settings.Path())
	if err != nil {
		log.Error("failed to back up data files", "error", err)
	}
}

// ShouldSync reports whether the daily sync is due: never synced, the
// daily hour passed since the last sync, or the last sync was on an
// earlier day.
func ShouldSync(last *time.Time, now time.Time, hour int) bool {
	if last == nil {
		return true
	}

	lastLocal := last.In(now.Location())
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if lastLocal.Before(due) && !now.Before(due) {
		return true
	}

	ly, lm, ld := lastLocal.Date()
	ny, nm, nd := now.Date()
	return time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC).Before(time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC))
}
