package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const stateVersion = "1"

// ChatState records ingestion progress of one chat
type ChatState struct {
	ChatID     int64     `yaml:"chat_id"`
	LastID     int64     `yaml:"last_id"`
	LastPullAt time.Time `yaml:"last_pull_at,omitempty"`
	Imported   int       `yaml:"imported"`
}

// StateFile is the YAML document persisted by StateManager
type StateFile struct {
	Version   string      `yaml:"version"`
	UpdatedAt time.Time   `yaml:"updated_at"`
	Chats     []ChatState `yaml:"chats"`
}

// StateManager persists per-chat last-seen message ids between pulls
type StateManager struct {
	path string
}

// NewStateManager creates a state manager for the given file
func NewStateManager(path string) *StateManager {
	return &StateManager{path: path}
}

// Path returns the state file path
func (sm *StateManager) Path() string {
	return sm.path
}

// Load reads the state file. A missing file yields empty state.
func (sm *StateManager) Load() (*StateFile, error) {
	data, err := os.ReadFile(sm.path)
	if errors.Is(err, os.ErrNotExist) {
		return &StateFile{Version: stateVersion}, nil
	}
	if err != nil {
		return nil, &StorageError{Path: sm.path, Op: "read", Err: err}
	}

	var state StateFile
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, &StorageError{Path: sm.path, Op: "read", Err: fmt.Errorf("failed to unmarshal state: %w", err)}
	}
	return &state, nil
}

// LastID returns the last ingested message id of a chat, 0 when unknown.
func (sm *StateManager) LastID(chatID int64) (int64, error) {
	state, err := sm.Load()
	if err != nil {
		return 0, err
	}
	if cs := state.find(chatID); cs != nil {
		return cs.LastID, nil
	}
	return 0, nil
}

// Record stores a new last id for a chat. Ids never move backwards.
func (sm *StateManager) Record(chatID, lastID int64, imported int) error {
	state, err := sm.Load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cs := state.find(chatID)
	if cs == nil {
		state.Chats = append(state.Chats, ChatState{ChatID: chatID})
		cs = &state.Chats[len(state.Chats)-1]
	}
	if lastID > cs.LastID {
		cs.LastID = lastID
	}
	cs.Imported += imported
	cs.LastPullAt = now

	state.Version = stateVersion
	state.UpdatedAt = now
	return sm.save(state)
}

func (sm *StateManager) save(state *StateFile) error {
	if err := os.MkdirAll(filepath.Dir(sm.path), 0755); err != nil {
		return &StorageError{Path: sm.path, Op: "save", Err: err}
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return &StorageError{Path: sm.path, Op: "save", Err: fmt.Errorf("failed to marshal state: %w", err)}
	}

	tmp := sm.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &StorageError{Path: sm.path, Op: "save", Err: err}
	}
	if err := os.Rename(tmp, sm.path); err != nil {
		return &StorageError{Path: sm.path, Op: "save", Err: err}
	}
	return nil
}

func (s *StateFile) find(chatID int64) *ChatState {
	for i := range s.Chats {
		if s.Chats[i].ChatID == chatID {
			return &s.Chats[i]
		}
	}
	return nil
}
