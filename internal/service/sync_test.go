package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runboard/runboard/internal/dataset"
	"github.com/runboard/runboard/internal/model"
	"github.com/runboard/runboard/internal/settings"
	"github.com/runboard/runboard/internal/strava"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeTokens struct {
	err error
}

func (f *fakeTokens) Token(ctx context.Context) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "access"}, nil
}

type fakeFetcher struct {
	activities []model.Activity
	skipped    []*dataset.DataIntegrityError
	err        error
	calls      atomic.Int32
	gate       chan struct{}
}

func (f *fakeFetcher) Activities(ctx context.Context, token *oauth2.Token, limit int) ([]model.Activity, []*dataset.DataIntegrityError, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.activities, f.skipped, nil
}

func activity(id int64, day string, distance float64) model.Activity {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		panic(err)
	}
	return model.Activity{
		ID:             id,
		Name:           "Run",
		Type:           model.ActivityTypeRun,
		StartDateLocal: t.Add(8 * time.Hour),
		Distance:       distance,
		MovingTime:     int(distance / 1000 * 330),
	}
}

type syncFixture struct {
	dataset  *dataset.Store
	settings *settings.Store
	fetcher  *fakeFetcher
	service  *SyncService
	now      time.Time
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	dir := t.TempDir()
	f := &syncFixture{
		dataset:  dataset.NewStore(filepath.Join(dir, "running_data.csv")),
		settings: settings.NewStore(filepath.Join(dir, "app_config.json"), 100),
		fetcher:  &fakeFetcher{},
		now:      time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC),
	}
	f.service = NewSyncService(SyncDeps{
		Tokens:        &fakeTokens{},
		Fetcher:       f.fetcher,
		Dataset:       f.dataset,
		Settings:      f.settings,
		MaxActivities: 1000,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func TestSyncMergesIntoDataset(t *testing.T) {
	f := newSyncFixture(t)
	require.NoError(t, f.dataset.Save([]model.Activity{activity(1, "2025-01-01", 5000)}))
	f.fetcher.activities = []model.Activity{activity(1, "2025-01-01", 5200), activity(2, "2025-01-02", 3000)}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.Total)
	assert.Zero(t, result.SkippedCount())

	snap, err := f.dataset.Load()
	require.NoError(t, err)
	require.Len(t, snap.Activities, 2)
	assert.Equal(t, int64(2), snap.Activities[0].ID)
	assert.Equal(t, 5200.0, snap.Activities[1].Distance)

	s, err := f.settings.Load()
	require.NoError(t, err)
	require.NotNil(t, s.LastUpdate)
	assert.True(t, f.now.Equal(*s.LastUpdate))
}

func TestSyncSkipsRecordWithoutDate(t *testing.T) {
	f := newSyncFixture(t)
	broken := activity(3, "2025-01-03", 4000)
	broken.StartDateLocal = time.Time{}
	f.fetcher.activities = []model.Activity{activity(2, "2025-01-02", 3000), broken}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedCount())
	assert.Equal(t, 1, result.Total)

	snap, err := f.dataset.Load()
	require.NoError(t, err)
	require.Len(t, snap.Activities, 1)
	assert.Equal(t, int64(2), snap.Activities[0].ID)
}

func TestSyncRateLimitedWritesNothing(t *testing.T) {
	f := newSyncFixture(t)
	require.NoError(t, f.dataset.Save([]model.Activity{activity(1, "2025-01-01", 5000)}))
	_, err := f.settings.SetMonthlyGoal(120)
	require.NoError(t, err)

	datasetBefore, err := os.ReadFile(f.dataset.Path())
	require.NoError(t, err)
	settingsBefore, err := os.ReadFile(f.settings.Path())
	require.NoError(t, err)

	f.fetcher.err = &strava.RateLimitError{Page: 3, RetryAfter: time.Minute}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	assert.Nil(t, result)

	var rateErr *strava.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 3, rateErr.Page)
	var netErr *strava.NetworkError
	assert.False(t, errors.As(err, &netErr))

	datasetAfter, err := os.ReadFile(f.dataset.Path())
	require.NoError(t, err)
	settingsAfter, err := os.ReadFile(f.settings.Path())
	require.NoError(t, err)
	assert.Equal(t, datasetBefore, datasetAfter)
	assert.Equal(t, settingsBefore, settingsAfter)
}

func TestSyncAuthFailureWritesNothing(t *testing.T) {
	f := newSyncFixture(t)
	f.service.deps.Tokens = &fakeTokens{err: &strava.AuthError{Err: errors.New("invalid_grant")}}

	_, err := f.service.Run(context.Background(), SyncOptions{})

	var authErr *strava.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Zero(t, f.fetcher.calls.Load())
	_, err = f.dataset.Load()
	assert.ErrorIs(t, err, dataset.ErrNoDataset)
}

func TestSyncRebuildsIncompatibleDataset(t *testing.T) {
	f := newSyncFixture(t)
	legacy := "start_date_local,distance,moving_time\n2024-05-01 07:00:00,5000,1800\n"
	require.NoError(t, os.WriteFile(f.dataset.Path(), []byte(legacy), 0644))
	f.fetcher.activities = []model.Activity{activity(7, "2025-01-02", 3000)}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	snap, err := f.dataset.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Activities, 1)

	archived, err := os.ReadFile(result.Archived)
	require.NoError(t, err)
	assert.Equal(t, legacy, string(archived))
}

func TestSyncKeepsMalformedStoredRows(t *testing.T) {
	f := newSyncFixture(t)
	data := "id,name,type,start_date,start_date_local,distance,moving_time,max_heartrate\n" +
		"9,Bad start,Run,garbage,2024-12-30T08:00:00Z,4000,1320,\n" +
		"8,Bad hr,Run,,2024-12-29T08:00:00Z,6000,1980,fast\n" +
		"5,No local date,Run,,,7000,2300,\n" +
		"1,Good,Run,,2024-12-28T08:00:00Z,5000,1650,\n"
	require.NoError(t, os.WriteFile(f.dataset.Path(), []byte(data), 0644))
	f.fetcher.activities = []model.Activity{activity(2, "2025-01-02", 3000)}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 2, result.Repaired)
	require.Equal(t, 1, result.SkippedCount())
	assert.Equal(t, "start_date_local", result.Skipped[0].Field)

	snap, err := f.dataset.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 9, 8, 1}, ids(snap.Activities))
	require.Len(t, snap.Unreadable, 1)
	assert.Equal(t, "5", snap.Unreadable[0]["id"])
	assert.Equal(t, "7000", snap.Unreadable[0]["distance"])
	assert.Empty(t, snap.Repaired)
}

func TestSyncArchivesUnparsableCSV(t *testing.T) {
	f := newSyncFixture(t)
	broken := "id,start_date_local,distance,moving_time\n1,\"2025-01-01T08:00:00Z,5000,1800\n"
	require.NoError(t, os.WriteFile(f.dataset.Path(), []byte(broken), 0644))
	f.fetcher.activities = []model.Activity{activity(2, "2025-01-02", 3000)}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Archived)

	archived, err := os.ReadFile(result.Archived)
	require.NoError(t, err)
	assert.Equal(t, broken, string(archived))

	snap, err := f.dataset.Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(snap.Activities))
}

func TestSyncCountsUndecodableFetchedRecords(t *testing.T) {
	f := newSyncFixture(t)
	f.fetcher.activities = []model.Activity{activity(2, "2025-01-02", 3000)}
	f.fetcher.skipped = []*dataset.DataIntegrityError{{Field: "page 1 record 2", Reason: "activity is not an object"}}

	result, err := f.service.Run(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Total)
	require.Equal(t, 1, result.SkippedCount())
	assert.Equal(t, "page 1 record 2", result.Skipped[0].Field)
}

func TestSyncOverlappingCallsShareOneRun(t *testing.T) {
	f := newSyncFixture(t)
	f.fetcher.activities = []model.Activity{activity(1, "2025-01-01", 5000)}
	f.fetcher.gate = make(chan struct{})

	results := make(chan *SyncResult, 2)
	for range 2 {
		go func() {
			r, err := f.service.Run(context.Background(), SyncOptions{})
			assert.NoError(t, err)
			results <- r
		}()
	}

	require.Eventually(t, func() bool { return f.fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Let the second caller join before releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.gate)

	first, second := <-results, <-results
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
}

func TestShouldSync(t *testing.T) {
	at := func(day, clock string) *time.Time {
		ts, err := time.Parse("2006-01-02 15:04", day+" "+clock)
		if err != nil {
			panic(err)
		}
		return &ts
	}

	tests := []struct {
		name string
		last *time.Time
		now  *time.Time
		want bool
	}{
		{"never synced", nil, at("2025-01-03", "07:00"), true},
		{"synced before 8 and now after 8", at("2025-01-03", "06:00"), at("2025-01-03", "09:00"), true},
		{"synced after 8 today", at("2025-01-03", "08:30"), at("2025-01-03", "20:00"), false},
		{"synced before 8 and still before 8", at("2025-01-03", "06:00"), at("2025-01-03", "07:00"), false},
		{"synced yesterday", at("2025-01-02", "21:00"), at("2025-01-03", "07:00"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSync(tt.last, *tt.now, 8))
		})
	}
}

func ids(activities []model.Activity) []int64 {
	out := make([]int64, 0, len(activities))
	for _, a := range activities {
		out = append(out, a.ID)
	}
	return out
}
