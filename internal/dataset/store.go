package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/runboard/runboard/internal/model"
)

// Stored columns, in file order.
const (
	colID                 = "id"
	colName               = "name"
	colType               = "type"
	colStartDate          = "start_date"
	colStartDateLocal     = "start_date_local"
	colDistance           = "distance"
	colMovingTime         = "moving_time"
	colElapsedTime        = "elapsed_time"
	colTotalElevationGain = "total_elevation_gain"
	colAverageHeartrate   = "average_heartrate"
	colMaxHeartrate       = "max_heartrate"
	colAverageSpeed       = "average_speed"
	colMaxSpeed           = "max_speed"
)

var storedColumns = []string{
	colID,
	colName,
	colType,
	colStartDate,
	colStartDateLocal,
	colDistance,
	colMovingTime,
	colElapsedTime,
	colTotalElevationGain,
	colAverageHeartrate,
	colMaxHeartrate,
	colAverageSpeed,
	colMaxSpeed,
}

// derivedColumns are written for downstream readers and recomputed on load.
var derivedColumns = []string{
	"date",
	"hour",
	"weekday",
	"week",
	"month",
	"year",
	"distance_km",
	"moving_time_min",
	"pace",
	"pace_zone",
	"time_of_day",
}

// requiredColumns must be present for a file to be usable.
var requiredColumns = []string{colID, colStartDateLocal, colDistance, colMovingTime}

// Row is a dataset line keyed by column name.
type Row map[string]string

// Snapshot is a parsed dataset file.
type Snapshot struct {
	Activities []model.Activity // file order

	// Unreadable rows have no usable id or start_date_local. They stay out
	// of Activities and are written back verbatim by Save.
	Unreadable []Row
	Skipped    []*DataIntegrityError // one per Unreadable row

	// Repaired lists fields that failed to parse and were reset to zero;
	// their records are still in Activities.
	Repaired []*DataIntegrityError

	ModTime time.Time
}

// Store reads and writes the dataset CSV file. Writes replace the file
// atomically, so concurrent readers see either the old or the new file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load parses the dataset file. It returns ErrNoDataset when the file does
// not exist and ErrNeedsResync when a required column is missing or the
// CSV itself is malformed. Rows without a usable key are kept in
// Snapshot.Unreadable and reported in Snapshot.Skipped.
func (s *Store) Load() (*Snapshot, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() {
		closeErr := f.Close()
		if closeErr != nil {
			slog.Error("failed to close dataset file", "error", closeErr, "path", s.path)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat dataset: %w", err)
	}

	snap, err := Decode(f)
	if err != nil {
		return nil, err
	}
	snap.ModTime = info.ModTime()

	if len(snap.Skipped) > 0 {
		slog.Warn("dataset rows skipped", "path", s.path, "skipped", len(snap.Skipped))
	}
	for _, repaired := range snap.Repaired {
		slog.Warn("dataset field reset", "path", s.path, "error", repaired)
	}

	return snap, nil
}

// Save writes activities to the dataset file through a temporary file in
// the same directory followed by a rename. Unreadable rows from an earlier
// Load are appended unchanged.
func (s *Store) Save(activities []model.Activity, unreadable ...Row) error {
	dir := filepath.Dir(s.path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var buf bytes.Buffer
	err = Encode(&buf, activities, unreadable...)
	if err != nil {
		return err
	}

	err = atomic.WriteFile(s.path, &buf)
	if err != nil {
		return fmt.Errorf("failed to replace dataset: %w", err)
	}

	return nil
}

// Archive copies the dataset file next to itself with a timestamp suffix
// and returns the copy's path. It is used before a full rebuild replaces a
// file that could not be read.
func (s *Store) Archive(at time.Time) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read dataset for archive: %w", err)
	}

	dest := fmt.Sprintf("%s.%s.bak", s.path, at.UTC().Format("20060102T150405Z"))
	err = atomic.WriteFile(dest, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to archive dataset: %w", err)
	}
	return dest, nil
}

// Encode writes activities as CSV: stored columns, derived columns, then
// the union of extra upstream fields in name order. Unreadable rows follow
// the activities, except those whose id now belongs to an activity.
func Encode(w io.Writer, activities []model.Activity, unreadable ...Row) error {
	extras := extraColumns(activities, unreadable)

	header := make([]string, 0, len(storedColumns)+len(derivedColumns)+len(extras))
	header = append(header, storedColumns...)
	header = append(header, derivedColumns...)
	header = append(header, extras...)

	cw := csv.NewWriter(w)
	err := cw.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write dataset header: %w", err)
	}

	known := make(map[string]struct{}, len(activities))
	for i := range activities {
		known[strconv.FormatInt(activities[i].ID, 10)] = struct{}{}
		err = cw.Write(encodeRow(&activities[i], extras))
		if err != nil {
			return fmt.Errorf("failed to write activity %d: %w", activities[i].ID, err)
		}
	}

	for _, row := range unreadable {
		if _, ok := known[strings.TrimSpace(row[colID])]; ok {
			continue
		}
		record := make([]string, len(header))
		for i, name := range header {
			record[i] = row[name]
		}
		err = cw.Write(record)
		if err != nil {
			return fmt.Errorf("failed to write unreadable row: %w", err)
		}
	}

	cw.Flush()
	err = cw.Error()
	if err != nil {
		return fmt.Errorf("failed to flush dataset: %w", err)
	}
	return nil
}

// Decode parses a dataset CSV stream.
func Decode(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrNeedsResync)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrNeedsResync, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrNeedsResync, name)
		}
	}

	var extras []string
	for _, name := range header {
		if !slices.Contains(storedColumns, name) && !slices.Contains(derivedColumns, name) {
			extras = append(extras, name)
		}
	}

	snap := &Snapshot{}
	row := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			// Quoting errors can swallow the rest of the file, so no row
			// after this point can be trusted.
			return nil, fmt.Errorf("%w: row %d: %w", ErrNeedsResync, row, err)
		}

		get := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		a, repaired, keyErr := decodeRow(get, extras)
		for _, r := range repaired {
			r.Row = row
		}
		snap.Repaired = append(snap.Repaired, repaired...)
		if keyErr != nil {
			keyErr.Row = row
			snap.Skipped = append(snap.Skipped, keyErr)
			snap.Unreadable = append(snap.Unreadable, rawRow(header, record))
			continue
		}
		snap.Activities = append(snap.Activities, a)
	}

	return snap, nil
}

func encodeRow(a *model.Activity, extras []string) []string {
	row := []string{
		strconv.FormatInt(a.ID, 10),
		a.Name,
		a.Type,
		formatTime(a.StartDate),
		formatTime(a.StartDateLocal),
		formatFloat(a.Distance),
		strconv.Itoa(a.MovingTime),
		strconv.Itoa(a.ElapsedTime),
		formatFloat(a.TotalElevationGain),
		formatOptional(a.AverageHeartrate),
		formatOptional(a.MaxHeartrate),
		formatFloat(a.AverageSpeed),
		formatFloat(a.MaxSpeed),
	}

	local := a.StartDateLocal
	_, week := local.ISOWeek()
	row = append(row,
		a.Date().Format(time.DateOnly),
		strconv.Itoa(local.Hour()),
		local.Weekday().String(),
		strconv.Itoa(week),
		strconv.Itoa(int(local.Month())),
		strconv.Itoa(local.Year()),
		formatFloat(a.DistanceKm()),
		formatFloat(a.MovingTimeMin()),
		formatFloat(a.Pace()),
		a.PaceZone(),
		a.TimeOfDay(),
	)

	for _, name := range extras {
		row = append(row, a.Extra[name])
	}
	return row
}

// decodeRow returns a key error when id or start_date_local is unusable.
// Any other field that fails to parse is reset to zero and reported in
// repaired.
func decodeRow(get func(string) string, extras []string) (a model.Activity, repaired []*DataIntegrityError, keyErr *DataIntegrityError) {
	rawID := get(colID)
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return a, nil, &DataIntegrityError{Field: colID, Value: rawID, Reason: "invalid identifier"}
	}
	a.ID = id

	rawLocal := get(colStartDateLocal)
	a.StartDateLocal, err = model.ParseTimestamp(rawLocal)
	if err != nil {
		return a, nil, &DataIntegrityError{ID: id, Field: colStartDateLocal, Value: rawLocal, Reason: "missing or malformed date"}
	}

	p := fieldParser{id: id, get: get}
	if raw := get(colStartDate); raw != "" {
		a.StartDate, err = model.ParseTimestamp(raw)
		if err != nil {
			a.StartDate = time.Time{}
			p.errs = append(p.errs, &DataIntegrityError{ID: id, Field: colStartDate, Value: raw, Reason: "malformed date, reset"})
		}
	}

	a.Name = get(colName)
	a.Type = get(colType)

	a.Distance = p.number(colDistance)
	a.MovingTime = p.integer(colMovingTime)
	a.ElapsedTime = p.integer(colElapsedTime)
	a.TotalElevationGain = p.number(colTotalElevationGain)
	a.AverageHeartrate = p.optional(colAverageHeartrate)
	a.MaxHeartrate = p.optional(colMaxHeartrate)
	a.AverageSpeed = p.number(colAverageSpeed)
	a.MaxSpeed = p.number(colMaxSpeed)

	for _, name := range extras {
		if v := get(name); v != "" {
			if a.Extra == nil {
				a.Extra = make(map[string]string)
			}
			a.Extra[name] = v
		}
	}

	return a, p.errs, nil
}

func rawRow(header, record []string) Row {
	row := make(Row, len(header))
	for i, name := range header {
		if i < len(record) {
			row[name] = record[i]
		}
	}
	return row
}

// fieldParser collects the numeric parse failures of a row.
type fieldParser struct {
	id   int64
	get  func(string) string
	errs []*DataIntegrityError
}

func (p *fieldParser) number(name string) float64 {
	raw := p.get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name, raw)
		return 0
	}
	return v
}

// integer accepts "1800" and "1800.0"; older files stored durations as floats.
func (p *fieldParser) integer(name string) int {
	raw := p.get(name)
	if raw == "" {
		return 0
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name, raw)
		return 0
	}
	return int(v)
}

func (p *fieldParser) optional(name string) *float64 {
	raw := p.get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name, raw)
		return nil
	}
	return &v
}

func (p *fieldParser) fail(name, raw string) {
	p.errs = append(p.errs, &DataIntegrityError{ID: p.id, Field: name, Value: raw, Reason: "not a number, reset"})
}

func extraColumns(activities []model.Activity, unreadable []Row) []string {
	set := make(map[string]struct{})
	add := func(k string) {
		if slices.Contains(storedColumns, k) || slices.Contains(derivedColumns, k) {
			return
		}
		set[k] = struct{}{}
	}
	for i := range activities {
		for k := range activities[i].Extra {
			add(k)
		}
	}
	for _, row := range unreadable {
		for k := range row {
			add(k)
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
