package strava

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/runboard/runboard/internal/model"
)

// typedFields are decoded into model.Activity; every other scalar field is
// kept verbatim in Activity.Extra.
var typedFields = map[string]bool{
	"id":                   true,
	"name":                 true,
	"type":                 true,
	"start_date":           true,
	"start_date_local":     true,
	"distance":             true,
	"moving_time":          true,
	"elapsed_time":         true,
	"total_elevation_gain": true,
	"average_heartrate":    true,
	"max_heartrate":        true,
	"average_speed":        true,
	"max_speed":            true,
}

// decodeActivity is lenient: a missing or malformed field leaves the zero
// value so the reconciler can judge the record. It only fails when the
// record is not a JSON object.
func decodeActivity(raw json.RawMessage) (model.Activity, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return model.Activity{}, fmt.Errorf("activity is not an object: %w", err)
	}

	a := model.Activity{
		ID:                 int64Field(fields["id"]),
		Name:               stringField(fields["name"]),
		Type:               stringField(fields["type"]),
		StartDate:          timeField(fields["start_date"]),
		StartDateLocal:     timeField(fields["start_date_local"]),
		Distance:           floatField(fields["distance"]),
		MovingTime:         int(int64Field(fields["moving_time"])),
		ElapsedTime:        int(int64Field(fields["elapsed_time"])),
		TotalElevationGain: floatField(fields["total_elevation_gain"]),
		AverageHeartrate:   optionalFloatField(fields["average_heartrate"]),
		MaxHeartrate:       optionalFloatField(fields["max_heartrate"]),
		AverageSpeed:       floatField(fields["average_speed"]),
		MaxSpeed:           floatField(fields["max_speed"]),
	}

	for name, v := range fields {
		if typedFields[name] {
			continue
		}
		if s, ok := scalar(v); ok {
			if a.Extra == nil {
				a.Extra = make(map[string]string)
			}
			a.Extra[name] = s
		}
	}

	return a, nil
}

// scalar renders strings, numbers and booleans; objects, arrays and null
// are not kept.
func scalar(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", false
	}
	switch v[0] {
	case '{', '[', 'n':
		return "", false
	case '"':
		var s string
		if json.Unmarshal(v, &s) != nil {
			return "", false
		}
		return s, true
	default:
		return string(v), true
	}
}

func stringField(v json.RawMessage) string {
	var s string
	_ = json.Unmarshal(v, &s)
	return s
}

func floatField(v json.RawMessage) float64 {
	var f float64
	_ = json.Unmarshal(v, &f)
	return f
}

func optionalFloatField(v json.RawMessage) *float64 {
	var f *float64
	_ = json.Unmarshal(v, &f)
	return f
}

func int64Field(v json.RawMessage) int64 {
	var n json.Number
	if json.Unmarshal(v, &n) != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func timeField(v json.RawMessage) time.Time {
	var s string
	if json.Unmarshal(v, &s) != nil {
		return time.Time{}
	}
	t, err := model.ParseTimestamp(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
