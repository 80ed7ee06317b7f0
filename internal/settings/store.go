package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/runboard/runboard/internal/model"
)

const (
	keyMonthlyGoal = "monthly_goal"
	keyLastUpdate  = "last_update"
)

var ErrInvalidGoal = errors.New("monthly goal must be a positive number")

// Store persists the settings record as a small JSON object. Each mutator
// rewrites only its own key and keeps any other keys already in the file.
type Store struct {
	path        string
	defaultGoal float64

	// serializes read-modify-write cycles within the process
	mu sync.Mutex
}

func NewStore(path string, defaultGoal float64) *Store {
	if defaultGoal <= 0 {
		defaultGoal = model.DefaultMonthlyGoal
	}
	return &Store{path: path, defaultGoal: defaultGoal}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored settings, falling back to defaults for a missing
// file or missing keys.
func (s *Store) Load() (*model.Settings, error) {
	raw, err := s.read()
	if err != nil {
		return nil, err
	}
	return s.decode(raw)
}

// SetMonthlyGoal updates the distance goal in kilometers.
func (s *Store) SetMonthlyGoal(goal float64) (*model.Settings, error) {
	if goal <= 0 {
		return nil, ErrInvalidGoal
	}
	return s.update(keyMonthlyGoal, goal)
}

// MarkSynced records the time of the last successful sync.
func (s *Store) MarkSynced(at time.Time) (*model.Settings, error) {
	return s.update(keyLastUpdate, at.Format(time.RFC3339))
}

func (s *Store) update(key string, value any) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	raw[key] = encoded

	err = s.write(raw)
	if err != nil {
		return nil, err
	}

	return s.decode(raw)
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	raw := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return raw, nil
	}

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return raw, nil
}

func (s *Store) write(raw map[string]json.RawMessage) error {
	err := os.MkdirAll(filepath.Dir(s.path), 0755)
	if err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	err = atomic.WriteFile(s.path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

func (s *Store) decode(raw map[string]json.RawMessage) (*model.Settings, error) {
	settings := &model.Settings{MonthlyGoal: s.defaultGoal}

	if v, ok := raw[keyMonthlyGoal]; ok && !isNull(v) {
		var goal float64
		err := json.Unmarshal(v, &goal)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", keyMonthlyGoal, err)
		}
		if goal > 0 {
			settings.MonthlyGoal = goal
		}
	}

	if v, ok := raw[keyLastUpdate]; ok && !isNull(v) {
		var ts string
		err := json.Unmarshal(v, &ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", keyLastUpdate, err)
		}
		t, err := model.ParseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s %q: %w", keyLastUpdate, ts, err)
		}
		settings.LastUpdate = &t
	}

	return settings, nil
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}
