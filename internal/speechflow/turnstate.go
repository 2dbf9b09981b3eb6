package speechflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TurnState records whose turn it is, so a reloaded client resumes with the
// right side of the conversation active.
type TurnState struct {
	IsUserTurn bool      `json:"isUserTurn"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TurnStore persists TurnState per application as small JSON files.
type TurnStore struct {
	dir string
}

func NewTurnStore(dir string) *TurnStore {
	return &TurnStore{dir: dir}
}

func (s *TurnStore) path(applicationID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("turn_%s.json", applicationID))
}

func (s *TurnStore) Save(applicationID string, state TurnState) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize turn state: %w", err)
	}

	if err := os.WriteFile(s.path(applicationID), data, 0644); err != nil {
		return fmt.Errorf("failed to write turn state: %w", err)
	}
	return nil
}

// Load returns the saved turn state, or nil if none was persisted.
func (s *TurnStore) Load(applicationID string) (*TurnState, error) {
	data, err := os.ReadFile(s.path(applicationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read turn state: %w", err)
	}

	var state TurnState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode turn state: %w", err)
	}
	return &state, nil
}

func (s *TurnStore) Clear(applicationID string) error {
	err := os.Remove(s.path(applicationID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear turn state: %w", err)
	}
	return nil
}
