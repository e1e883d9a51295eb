package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const sessionDirName = "teamified-sessions"

// ErrSessionNotFound is returned by OpenSession for an unknown or closed
// session ID.
var ErrSessionNotFound = errors.New("tokenstore: session not found")

// Session keeps tokens in a per-session directory that is removed when the
// creating process calls Close. Cooperating processes join with OpenSession.
type Session struct {
	*persisted
	id    string
	dir   string
	owner bool

	closeOnce sync.Once
	closeErr  error
}

// SessionRoot returns $XDG_RUNTIME_DIR/teamified-sessions, or the same
// under os.TempDir when no runtime dir is set.
func SessionRoot() string {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, sessionDirName)
}

// NewSession starts a fresh session under root ("" selects SessionRoot).
func NewSession(root string, opts ...Option) (*Session, error) {
	if root == "" {
		root = SessionRoot()
	}
	id := uuid.NewString()
	dir := filepath.Join(root, id)

	backend, err := NewFileBackend(dir)
	if err != nil {
		return nil, err
	}
	return newSession(id, dir, backend, true, opts), nil
}

// OpenSession joins a session another process created. Closing the
// returned store does not remove the session.
func OpenSession(root, id string, opts ...Option) (*Session, error) {
	if root == "" {
		root = SessionRoot()
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	dir := filepath.Join(root, id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	backend, err := NewFileBackend(dir)
	if err != nil {
		return nil, err
	}
	return newSession(id, dir, backend, false, opts), nil
}

func newSession(id, dir string, b Backend, owner bool, opts []Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{
		persisted: newPersisted(b, o),
		id:        id,
		dir:       dir,
		owner:     owner,
	}
}

func (s *Session) Kind() Kind { return KindSession }

// ID identifies the session to other processes.
func (s *Session) ID() string { return s.id }

// Close ends the session. The creator removes the directory; every caller
// drops its in-process view.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.slots.clear()
		if s.owner {
			s.closeErr = os.RemoveAll(s.dir)
		}
	})
	return s.closeErr
}
