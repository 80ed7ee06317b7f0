package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/runboard/runboard/internal/model"
)

// Cache keeps the last parsed snapshot of a Store in memory and drops it
// when the file changes on disk.
type Cache struct {
	store *Store

	mu     sync.RWMutex
	snap   *Snapshot
	err    error
	loaded bool
}

func NewCache(store *Store) *Cache {
	return &Cache{store: store}
}

// Snapshot returns the cached snapshot, loading it on first use or after
// an invalidation. Load errors are cached too, so a broken file is not
// re-read on every request.
func (c *Cache) Snapshot() (*Snapshot, error) {
	c.mu.RLock()
	if c.loaded {
		snap, err := c.snap, c.err
		c.mu.RUnlock()
		return snap, err
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.snap, c.err = c.store.Load()
		c.loaded = true
	}
	return c.snap, c.err
}

func (c *Cache) Path() string {
	return c.store.Path()
}

// Load bypasses the cache and reads the file.
func (c *Cache) Load() (*Snapshot, error) {
	return c.store.Load()
}

// Save writes through to the store and drops the cached snapshot, so
// readers see the new file without waiting for the watcher.
func (c *Cache) Save(activities []model.Activity, unreadable ...Row) error {
	err := c.store.Save(activities, unreadable...)
	c.Invalidate()
	return err
}

func (c *Cache) Archive(at time.Time) (string, error) {
	return c.store.Archive(at)
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap, c.err, c.loaded = nil, nil, false
	c.mu.Unlock()
}

// Watch invalidates the cache whenever the dataset file is created,
// written, renamed or removed, until ctx is done. It watches the parent
// directory because atomic replaces swap the file's inode.
func (c *Cache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			slog.Error("failed to close watcher", "error", closeErr)
		}
	}()

	dir := filepath.Dir(c.store.Path())
	err = watcher.Add(dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(c.store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				slog.Debug("dataset changed, dropping cache", "op", event.Op.String())
				c.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("dataset watcher error", "error", err)
		}
	}
}
