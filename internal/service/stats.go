package service

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/runboard/runboard/internal/model"
	"github.com/samber/lo"
)

// Ranges accepted by Summary.
const (
	RangeThisMonth = "month"
	Range7Days     = "7d"
	Range30Days    = "30d"
	Range90Days    = "90d"
	RangeThisYear  = "year"
	RangeAll       = "all"
)

var Ranges = []string{RangeThisMonth, Range7Days, Range30Days, Range90Days, RangeThisYear, RangeAll}

type Summary struct {
	Range      string  `json:"range"`
	Label      string  `json:"label"`
	TotalKm    float64 `json:"total_km"`
	Runs       int     `json:"runs"`
	AvgPace    float64 `json:"avg_pace"` // min/km over runs with a pace, 0 if none
	LongestKm  float64 `json:"longest_km"`
	ElevationM float64 `json:"elevation_m"`
}

type GoalProgress struct {
	Goal      float64 `json:"goal_km"`
	CurrentKm float64 `json:"current_km"`
	Percent   float64 `json:"percent"` // capped at 100
	Achieved  bool    `json:"achieved"`
}

type PeriodTotal struct {
	Label string  `json:"label"`
	Km    float64 `json:"km"`
	Runs  int     `json:"runs"`
}

type RunRef struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date"`
	DistanceKm float64   `json:"distance_km"`
	Pace       float64   `json:"pace"`
	MovingMin  float64   `json:"moving_min"`
}

type Records struct {
	FastestPace   *RunRef      `json:"fastest_pace,omitempty"`
	LongestRun    *RunRef      `json:"longest_run,omitempty"`
	BestMonth     *PeriodTotal `json:"best_month,omitempty"`
	CurrentStreak int          `json:"current_streak_days"`
	LongestStreak int          `json:"longest_streak_days"`
	TopRuns       []RunRef     `json:"top_runs"`
}

type Patterns struct {
	WeekdayKm map[string]float64 `json:"weekday_km"`
	PaceZones map[string]int     `json:"pace_zones"`
	TimeOfDay map[string]int     `json:"time_of_day"`
}

// StatsService computes dashboard metrics over runs. It is a pure reader:
// callers pass the activities and the clock.
type StatsService struct{}

func NewStatsService() *StatsService {
	return &StatsService{}
}

// Runs keeps only activities of type Run.
func (s *StatsService) Runs(activities []model.Activity) []model.Activity {
	return lo.Filter(activities, func(a model.Activity, _ int) bool {
		return a.IsRun()
	})
}

// Summary aggregates runs inside rangeName relative to now. Unknown ranges
// are treated as RangeAll.
func (s *StatsService) Summary(runs []model.Activity, rangeName string, now time.Time) *Summary {
	filtered, label := filterRange(runs, rangeName, now)
	if !slices.Contains(Ranges, rangeName) {
		rangeName = RangeAll
	}

	summary := &Summary{
		Range:      rangeName,
		Label:      label,
		TotalKm:    lo.SumBy(filtered, func(a model.Activity) float64 { return a.DistanceKm() }),
		Runs:       len(filtered),
		ElevationM: lo.SumBy(filtered, func(a model.Activity) float64 { return a.TotalElevationGain }),
	}

	paced := lo.Filter(filtered, func(a model.Activity, _ int) bool { return a.Pace() > 0 })
	if len(paced) > 0 {
		summary.AvgPace = lo.SumBy(paced, func(a model.Activity) float64 { return a.Pace() }) / float64(len(paced))
	}
	if len(filtered) > 0 {
		summary.LongestKm = lo.MaxBy(filtered, func(a, b model.Activity) bool { return a.Distance > b.Distance }).DistanceKm()
	}

	return summary
}

// GoalProgress measures the current calendar month against goal.
func (s *StatsService) GoalProgress(runs []model.Activity, goal float64, now time.Time) *GoalProgress {
	current := lo.SumBy(runs, func(a model.Activity) float64 {
		if sameMonth(a.StartDateLocal, now) {
			return a.DistanceKm()
		}
		return 0
	})

	progress := &GoalProgress{Goal: goal, CurrentKm: current}
	if goal > 0 {
		progress.Percent = min(current/goal*100, 100)
		progress.Achieved = current >= goal
	}
	return progress
}

// MonthlyTotals returns distance per calendar month, oldest first.
func (s *StatsService) MonthlyTotals(runs []model.Activity) []PeriodTotal {
	return totalsBy(runs, func(a model.Activity) string {
		return a.StartDateLocal.Format("2006-01")
	})
}

// WeeklyTotals returns distance per ISO week, oldest first.
func (s *StatsService) WeeklyTotals(runs []model.Activity) []PeriodTotal {
	return totalsBy(runs, func(a model.Activity) string {
		year, week := a.StartDateLocal.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	})
}

func (s *StatsService) Records(runs []model.Activity, now time.Time) *Records {
	records := &Records{TopRuns: []RunRef{}}
	if len(runs) == 0 {
		return records
	}

	paced := lo.Filter(runs, func(a model.Activity, _ int) bool { return a.Pace() > 0 })
	if len(paced) > 0 {
		fastest := lo.MinBy(paced, func(a, b model.Activity) bool { return a.Pace() < b.Pace() })
		records.FastestPace = runRef(fastest)
	}

	longest := lo.MaxBy(runs, func(a, b model.Activity) bool { return a.Distance > b.Distance })
	records.LongestRun = runRef(longest)

	months := s.MonthlyTotals(runs)
	best := lo.MaxBy(months, func(a, b PeriodTotal) bool { return a.Km > b.Km })
	records.BestMonth = &best

	records.CurrentStreak, records.LongestStreak = streaks(runs, now)

	byDistance := slices.Clone(runs)
	slices.SortStableFunc(byDistance, func(a, b model.Activity) int {
		return cmp.Compare(b.Distance, a.Distance)
	})
	for _, a := range byDistance[:min(5, len(byDistance))] {
		records.TopRuns = append(records.TopRuns, *runRef(a))
	}

	return records
}

func (s *StatsService) Patterns(runs []model.Activity) *Patterns {
	weekdayKm := make(map[string]float64, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		weekdayKm[d.String()] = 0
	}
	for _, a := range runs {
		weekdayKm[a.StartDateLocal.Weekday().String()] += a.DistanceKm()
	}

	return &Patterns{
		WeekdayKm: weekdayKm,
		PaceZones: lo.CountValuesBy(runs, func(a model.Activity) string { return a.PaceZone() }),
		TimeOfDay: lo.CountValuesBy(runs, func(a model.Activity) string { return a.TimeOfDay() }),
	}
}

func filterRange(runs []model.Activity, rangeName string, now time.Time) ([]model.Activity, string) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sinceDays := func(days int) []model.Activity {
		cutoff := today.AddDate(0, 0, -days)
		return lo.Filter(runs, func(a model.Activity, _ int) bool {
			return !localDay(a.StartDateLocal, now.Location()).Before(cutoff)
		})
	}

	switch rangeName {
	case RangeThisMonth:
		return lo.Filter(runs, func(a model.Activity, _ int) bool {
			return sameMonth(a.StartDateLocal, now)
		}), now.Format("January 2006")
	case Range7Days:
		return sinceDays(7), "Last 7 days"
	case Range30Days:
		return sinceDays(30), "Last 30 days"
	case Range90Days:
		return sinceDays(90), "Last 90 days"
	case RangeThisYear:
		return lo.Filter(runs, func(a model.Activity, _ int) bool {
			return a.StartDateLocal.Year() == now.Year()
		}), fmt.Sprintf("%d", now.Year())
	default:
		return runs, "All time"
	}
}

func totalsBy(runs []model.Activity, key func(model.Activity) string) []PeriodTotal {
	groups := lo.GroupBy(runs, key)

	totals := make([]PeriodTotal, 0, len(groups))
	for label, group := range groups {
		totals = append(totals, PeriodTotal{
			Label: label,
			Km:    lo.SumBy(group, func(a model.Activity) float64 { return a.DistanceKm() }),
			Runs:  len(group),
		})
	}
	slices.SortFunc(totals, func(a, b PeriodTotal) int {
		return cmp.Compare(a.Label, b.Label)
	})
	return totals
}

// streaks returns the current and longest runs of consecutive days with at
// least one run. The current streak counts only if the last run was today
// or yesterday.
func streaks(runs []model.Activity, now time.Time) (current, longest int) {
	days := lo.Uniq(lo.Map(runs, func(a model.Activity, _ int) time.Time {
		return localDay(a.StartDateLocal, time.UTC)
	}))
	if len(days) == 0 {
		return 0, 0
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	run := 1
	longest = 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if today.Sub(days[len(days)-1]) > 24*time.Hour {
		return 0, longest
	}

	current = 1
	for i := len(days) - 1; i > 0; i-- {
		if days[i].Sub(days[i-1]) != 24*time.Hour {
			break
		}
		current++
	}
	return current, longest
}

// localDay truncates a wall-clock time to its calendar day in loc, keeping
// the wall-clock date.
func localDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func sameMonth(t, now time.Time) bool {
	return t.Year() == now.Year() && t.Month() == now.Month()
}

func runRef(a model.Activity) *RunRef {
	return &RunRef{
		ID:         a.ID,
		Date:       a.Date(),
		DistanceKm: a.DistanceKm(),
		Pace:       a.Pace(),
		MovingMin:  a.MovingTimeMin(),
	}
}

// FormatPace renders minutes per kilometer as m:ss, or "-" for no pace.
func FormatPace(pace float64) string {
	if pace <= 0 {
		return "-"
	}
	total := int(math.Round(pace * 60))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
