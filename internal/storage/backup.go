package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BackupFiles uploads each file twice: under "latest/<name>" and under a
// dated "history/2006-01-02/<name>" key, so one bad sync can be rolled
// back by hand.
func BackupFiles(ctx context.Context, s Storage, at time.Time, paths ...string) error {
	day := at.UTC().Format(time.DateOnly)

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s for backup: %w", p, err)
		}

		name := filepath.Base(p)
		for _, key := range []string{"latest/" + name, "history/" + day + "/" + name} {
			err = s.Save(ctx, key, bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("failed to back up %s: %w", name, err)
			}
		}
	}

	return nil
}
