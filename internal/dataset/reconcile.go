package dataset

import (
	"cmp"
	"slices"

	"github.com/runboard/runboard/internal/model"
)

// Result is the outcome of reconciling a fetched batch into a dataset.
type Result struct {
	Activities []model.Activity // newest first, unique by ID
	Added      int
	Updated    int
	Skipped    []*DataIntegrityError
}

// Reconcile upserts fetched into existing by activity ID. Fetched records
// win over stored ones; stored records missing from the batch are kept
// as they are. Fetched records without an ID or start date are skipped
// and reported. Neither input is modified.
func Reconcile(existing, fetched []model.Activity) *Result {
	res := &Result{}

	merged := make(map[int64]model.Activity, len(existing)+len(fetched))
	for _, a := range existing {
		merged[a.ID] = a
	}

	seen := make(map[int64]bool, len(fetched))
	for _, a := range fetched {
		if err := validate(a); err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}

		// A batch can repeat an ID when upstream shifts pages mid-fetch;
		// the later copy wins and is counted once.
		if !seen[a.ID] {
			seen[a.ID] = true
			if _, ok := merged[a.ID]; ok {
				res.Updated++
			} else {
				res.Added++
			}
		}
		merged[a.ID] = a
	}

	res.Activities = make([]model.Activity, 0, len(merged))
	for _, a := range merged {
		res.Activities = append(res.Activities, a)
	}
	SortNewestFirst(res.Activities)

	return res
}

// SortNewestFirst orders activities by local start time descending, then
// by ID descending so equal start times have a stable order.
func SortNewestFirst(activities []model.Activity) {
	slices.SortFunc(activities, func(a, b model.Activity) int {
		if c := b.StartDateLocal.Compare(a.StartDateLocal); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func validate(a model.Activity) *DataIntegrityError {
	if a.ID <= 0 {
		return &DataIntegrityError{Field: "id", Reason: "missing identifier"}
	}
	if a.StartDateLocal.IsZero() {
		return &DataIntegrityError{ID: a.ID, Field: "start_date_local", Reason: "missing or malformed date"}
	}
	return nil
}
