package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDataset is returned by Load when no dataset file exists yet.
	ErrNoDataset = errors.New("dataset not found")

	// ErrNeedsResync is returned by Load when the file lacks a required
	// column or is not valid CSV. Readers treat it as "no usable data"; the
	// next sync archives the file and rebuilds it from a full fetch.
	ErrNeedsResync = errors.New("dataset needs full resync")
)

// DataIntegrityError describes one malformed record or field. It never
// aborts a sync. Fetched records are dropped; stored rows are kept in the
// file.
type DataIntegrityError struct {
	ID     int64  // 0 when the identifier itself is unusable
	Row    int    // 1-based data row in the file, 0 for fetched records
	Field  string // column or upstream field at fault
	Value  string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	var where string
	switch {
	case e.ID != 0:
		where = fmt.Sprintf("activity %d", e.ID)
	case e.Row != 0:
		where = fmt.Sprintf("row %d", e.Row)
	default:
		where = "activity"
	}
	if e.Value != "" {
		return fmt.Sprintf("%s: %s %q: %s", where, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", where, e.Field, e.Reason)
}
