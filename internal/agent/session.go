package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session records one agent conversation across feedback rounds. It is the
// continuation token handed back to callers: resuming with the session id
// replays the task and every prior round so the agent sees its own history.
type Session struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Rounds    []Round   `json:"rounds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Round is one completed agent run within a session.
type Round struct {
	Feedback      string   `json:"feedback,omitempty"`
	Summary       string   `json:"summary"`
	ModifiedFiles []string `json:"modifiedFiles,omitempty"`
	AddedFiles    []string `json:"addedFiles,omitempty"`
}

// SessionStore persists sessions as JSON files. Sessions live in a sibling
// directory of the workspace, not inside it, so they never show up in the
// working tree and never get committed.
type SessionStore struct {
	dir string
}

// NewSessionStore returns a store rooted beside the given workspace path.
func NewSessionStore(workspacePath string) *SessionStore {
	return &SessionStore{dir: workspacePath + ".sessions"}
}

// Create starts a new session for the given task.
func (s *SessionStore) Create(task string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Task:      task,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load reads the session with the given id.
func (s *SessionStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

// Save writes the session to disk, creating the store directory on first use.
func (s *SessionStore) Save(sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	if err := os.WriteFile(s.path(sess.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SessionStore) path(id string) string {
	return filepath.Join(s.dir, "session-"+id+".json")
}

// RemoveSessions deletes the session directory belonging to a workspace.
// Missing directories are not an error.
func RemoveSessions(workspacePath string) error {
	if workspacePath == "" {
		return nil
	}
	return os.RemoveAll(workspacePath + ".sessions")
}
