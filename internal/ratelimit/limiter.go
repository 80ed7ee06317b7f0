package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Window allows at most Limit events per sliding Period.
type Window struct {
	Limit  int
	Period time.Duration
}

// Limiter tracks events per key against one or more sliding windows. An
// event is admitted only when every window has room.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	windows  []Window
	longest  time.Duration
	now      func() time.Time

	// path, when set, receives every admitted event so separate processes
	// share one budget.
	path string
}

func New(windows ...Window) *Limiter {
	l := &Limiter{
		requests: make(map[string][]time.Time),
		windows:  windows,
		now:      time.Now,
	}
	for _, w := range windows {
		if w.Period > l.longest {
			l.longest = w.Period
		}
	}
	return l
}

// NewPersistent returns a limiter whose events are stored in a JSON file
// at path. Events already in the file count against the windows. A missing
// file starts an empty budget.
func NewPersistent(path string, windows ...Window) (*Limiter, error) {
	l := New(windows...)
	l.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rate budget: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}

	var stored map[string][]time.Time
	err = json.Unmarshal(data, &stored)
	if err != nil {
		// A damaged budget file only costs the history, not the limits.
		slog.Warn("rate budget unreadable, starting empty", "path", path, "error", err)
		return l, nil
	}
	for key, events := range stored {
		slices.SortFunc(events, time.Time.Compare)
		l.requests[key] = events
	}
	return l, nil
}

// Allow records an event for key and reports whether it was admitted.
// Rejected events are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	requests := l.prune(key, now)

	for _, w := range l.windows {
		if count(requests, now.Add(-w.Period)) >= w.Limit {
			return false
		}
	}

	l.requests[key] = append(requests, now)
	l.persist()
	return true
}

// persist writes the events to the budget file. Callers hold mu.
func (l *Limiter) persist() {
	if l.path == "" {
		return
	}

	err := l.writeFile()
	if err != nil {
		slog.Error("failed to persist rate budget", "path", l.path, "error", err)
	}
}

func (l *Limiter) writeFile() error {
	err := os.MkdirAll(filepath.Dir(l.path), 0755)
	if err != nil {
		return err
	}
	data, err := json.Marshal(l.requests)
	if err != nil {
		return err
	}
	return atomic.WriteFile(l.path, bytes.NewReader(data))
}

// RetryAfter returns how long until key would be admitted again, or 0 if
// it would be admitted now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	requests := l.prune(key, now)

	var wait time.Duration
	for _, w := range l.windows {
		cutoff := now.Add(-w.Period)
		n := count(requests, cutoff)
		if n < w.Limit {
			continue
		}
		// The window frees up when the oldest event that keeps it full
		// ages out.
		inWindow := requests[len(requests)-n:]
		oldest := inWindow[n-w.Limit]
		if d := oldest.Sub(cutoff); d > wait {
			wait = d
		}
	}
	return wait
}

// prune drops events older than the longest window. Callers hold mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	requests := l.requests[key]
	cutoff := now.Add(-l.longest)

	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return requests
	}

	valid := append([]time.Time(nil), requests[i:]...)
	if len(valid) == 0 {
		delete(l.requests, key)
		return nil
	}
	l.requests[key] = valid
	return valid
}

// count returns how many of the ordered events fall after cutoff.
func count(requests []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(requests) - 1; i >= 0 && requests[i].After(cutoff); i-- {
		n++
	}
	return n
}

// RunCleanup removes idle keys every interval until ctx is done.
func (l *Limiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.requests {
		l.prune(key, now)
	}
}
