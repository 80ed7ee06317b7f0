package model

import (
	"time"
)

const DefaultMonthlyGoal = 100.0

// Settings is the persisted config record shared by the sync routine and
// the dashboard. The sync routine only writes LastUpdate; the dashboard
// only writes MonthlyGoal.
type Settings struct {
	MonthlyGoal float64    // kilometers
	LastUpdate  *time.Time // nil until the first successful sync
}
