package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	objects map[string]string
	err     error
}

func (m *memStorage) Save(ctx context.Context, key string, body io.Reader) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = string(data)
	return nil
}

func TestBackupFiles(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "running_data.csv")
	settings := filepath.Join(dir, "app_config.json")
	require.NoError(t, os.WriteFile(dataset, []byte("id\n1\n"), 0644))
	require.NoError(t, os.WriteFile(settings, []byte(`{"monthly_goal":100}`), 0644))

	store := &memStorage{objects: map[string]string{}}
	at := time.Date(2025, 1, 3, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))

	err := BackupFiles(context.Background(), store, at, dataset, settings)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"latest/running_data.csv":             "id\n1\n",
		"history/2025-01-04/running_data.csv": "id\n1\n",
		"latest/app_config.json":              `{"monthly_goal":100}`,
		"history/2025-01-04/app_config.json":  `{"monthly_goal":100}`,
	}, store.objects)
}

func TestBackupFilesErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		store := &memStorage{objects: map[string]string{}}

		err := BackupFiles(context.Background(), store, time.Now(), filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
		assert.Empty(t, store.objects)
	})

	t.Run("upload failure", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "running_data.csv")
		require.NoError(t, os.WriteFile(path, []byte("id\n"), 0644))
		uploadErr := errors.New("bucket gone")

		err := BackupFiles(context.Background(), &memStorage{err: uploadErr}, time.Now(), path)
		assert.ErrorIs(t, err, uploadErr)
	})
}

func TestS3StorageKey(t *testing.T) {
	s := &S3Storage{prefix: "runboard/"}
	assert.Equal(t, "runboard/latest/running_data.csv", s.key("latest/running_data.csv"))

	s = &S3Storage{}
	assert.Equal(t, "latest/running_data.csv", s.key("latest/running_data.csv"))
}
