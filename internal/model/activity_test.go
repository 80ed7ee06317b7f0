package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityDerived(t *testing.T) {
	a := Activity{
		Type:           ActivityTypeRun,
		StartDateLocal: time.Date(2025, 1, 2, 18, 30, 0, 0, time.UTC),
		Distance:       10000,
		MovingTime:     3300,
	}

	assert.True(t, a.IsRun())
	assert.Equal(t, 10.0, a.DistanceKm())
	assert.Equal(t, 55.0, a.MovingTimeMin())
	assert.InDelta(t, 5.5, a.Pace(), 1e-9)
	assert.Equal(t, PaceZoneEasy, a.PaceZone())
	assert.Equal(t, TimeOfDayEvening, a.TimeOfDay())
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), a.Date())
}

func TestActivityHelpersOnMapValues(t *testing.T) {
	byID := map[int64]Activity{7: {ID: 7, Distance: 21000, MovingTime: 6300}}

	assert.Equal(t, 21.0, byID[7].DistanceKm())
	assert.InDelta(t, 5.0, byID[7].Pace(), 1e-9)
	assert.Equal(t, PaceZoneTempo, byID[7].PaceZone())
}

func TestActivityPaceWithoutDistance(t *testing.T) {
	a := Activity{MovingTime: 1200}

	assert.Equal(t, 0.0, a.Pace())
	assert.Equal(t, PaceZoneUnknown, a.PaceZone())
}

func TestPaceZone(t *testing.T) {
	tests := []struct {
		pace float64
		want string
	}{
		{0, PaceZoneUnknown},
		{4.2, PaceZoneSpeed},
		{4.5, PaceZoneTempo},
		{6.0, PaceZoneEasy},
		{6.5, PaceZoneRecovery},
		{9, PaceZoneRecovery},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PaceZone(tt.pace), "pace %v", tt.pace)
	}
}

func TestTimeOfDay(t *testing.T) {
	assert.Equal(t, TimeOfDayEvening, TimeOfDay(4))
	assert.Equal(t, TimeOfDayMorning, TimeOfDay(5))
	assert.Equal(t, TimeOfDayMorning, TimeOfDay(11))
	assert.Equal(t, TimeOfDayAfternoon, TimeOfDay(12))
	assert.Equal(t, TimeOfDayEvening, TimeOfDay(18))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-02T08:15:00Z", time.Date(2025, 1, 2, 8, 15, 0, 0, time.UTC)},
		{"2025-01-02 08:15:00", time.Date(2025, 1, 2, 8, 15, 0, 0, time.UTC)},
		{"2025-01-02T08:15:00", time.Date(2025, 1, 2, 8, 15, 0, 0, time.UTC)},
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{" 2025-01-02T08:15:00+02:00 ", time.Date(2025, 1, 2, 6, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%q parsed as %v", tt.in, got)
	}

	for _, bad := range []string{"", "yesterday", "02/01/2025"} {
		_, err := ParseTimestamp(bad)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, bad)
	}
}
