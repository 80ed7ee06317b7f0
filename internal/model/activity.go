package model

import (
	"time"
)

const ActivityTypeRun = "Run"

// Pace zones, by average pace in minutes per kilometer.
const (
	PaceZoneUnknown  = "Unknown"
	PaceZoneSpeed    = "Speed"
	PaceZoneTempo    = "Tempo"
	PaceZoneEasy     = "Easy"
	PaceZoneRecovery = "Recovery"
)

const (
	TimeOfDayMorning   = "Morning"
	TimeOfDayAfternoon = "Afternoon"
	TimeOfDayEvening   = "Evening"
)

// Activity is one recorded activity as returned by the upstream listing.
// StartDateLocal is the athlete's wall clock and drives ordering and
// calendar grouping.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	AverageHeartrate   *float64  `json:"average_heartrate"`
	MaxHeartrate       *float64  `json:"max_heartrate"`
	AverageSpeed       float64   `json:"average_speed"` // m/s
	MaxSpeed           float64   `json:"max_speed"`     // m/s

	// Extra holds scalar upstream fields without a typed column, verbatim.
	Extra map[string]string `json:"extra,omitempty"`
}

func (a Activity) IsRun() bool {
	return a.Type == ActivityTypeRun
}

func (a Activity) DistanceKm() float64 {
	return a.Distance / 1000
}

func (a Activity) MovingTimeMin() float64 {
	return float64(a.MovingTime) / 60
}

// Pace returns minutes per kilometer, or 0 when no distance was recorded.
func (a Activity) Pace() float64 {
	km := a.DistanceKm()
	if km <= 0 {
		return 0
	}
	return a.MovingTimeMin() / km
}

func (a Activity) PaceZone() string {
	return PaceZone(a.Pace())
}

func (a Activity) TimeOfDay() string {
	return TimeOfDay(a.StartDateLocal.Hour())
}

// Date is the local calendar day of the activity start.
func (a Activity) Date() time.Time {
	t := a.StartDateLocal
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func PaceZone(pace float64) string {
	switch {
	case pace == 0:
		return PaceZoneUnknown
	case pace < 4.5:
		return PaceZoneSpeed
	case pace < 5.5:
		return PaceZoneTempo
	case pace < 6.5:
		return PaceZoneEasy
	default:
		return PaceZoneRecovery
	}
}

func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return TimeOfDayMorning
	case hour >= 12 && hour < 18:
		return TimeOfDayAfternoon
	default:
		return TimeOfDayEvening
	}
}
