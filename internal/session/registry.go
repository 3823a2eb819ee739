package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// History reports recordings finished by an earlier process
type History interface {
	Completed(filename string) bool
}

// Registry maps a recording filename to its live session.
// The registry lock only guards the map; per-session work runs under the
// session's own lock so different recordings never wait on each other.
// Completed filenames stay closed: chunks and triggers for them are refused.
type Registry struct {
	sessions  map[string]*Session
	completed map[string]struct{}
	history   History
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		completed: make(map[string]struct{}),
	}
}

// SetHistory makes the registry refuse filenames that h reports as completed
func (r *Registry) SetHistory(h History) {
	r.mu.Lock()
	r.history = h
	r.mu.Unlock()
}

// Lookup returns the session for filename
func (r *Registry) Lookup(filename string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[filename]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Create registers a new receiving session for filename
func (r *Registry) Create(sessionID, filename, userID string, plan types.Plan) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[filename]; exists {
		return nil, ErrSessionExists
	}
	s := newSession(sessionID, filename)
	s.userID = userID
	s.plan = plan
	r.sessions[filename] = s
	return s, nil
}

// Remove forgets the session for filename
func (r *Registry) Remove(filename string) {
	r.mu.Lock()
	delete(r.sessions, filename)
	r.mu.Unlock()
}

// Complete releases the session for filename and closes the filename for
// good. Later chunks and triggers fail with ErrSessionClosed.
func (r *Registry) Complete(filename string) {
	r.mu.Lock()
	delete(r.sessions, filename)
	r.completed[filename] = struct{}{}
	r.mu.Unlock()
}

// closed reports whether filename already completed, here or in history
func (r *Registry) closed(filename string) bool {
	r.mu.RLock()
	_, done := r.completed[filename]
	h := r.history
	r.mu.RUnlock()
	if done {
		return true
	}
	return h != nil && h.Completed(filename)
}

// getOrCreate returns the session for filename, creating it on first use.
// created is true when this call inserted the session.
func (r *Registry) getOrCreate(sessionID, filename string) (s *Session, created bool, err error) {
	r.mu.RLock()
	s, ok := r.sessions[filename]
	r.mu.RUnlock()
	if ok {
		return s, false, nil
	}
	if r.closed(filename) {
		return nil, false, ErrSessionClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[filename]; ok {
		return s, false, nil
	}
	if _, done := r.completed[filename]; done {
		return nil, false, ErrSessionClosed
	}
	s = newSession(sessionID, filename)
	r.sessions[filename] = s
	return s, true, nil
}

// AppendChunk appends fragment to the session for filename, creating the
// session if absent. Fragments are kept in call order.
func (r *Registry) AppendChunk(sessionID, filename string, fragment []byte) (created bool, err error) {
	s, created, err := r.getOrCreate(sessionID, filename)
	if err != nil {
		return false, err
	}
	return created, s.Append(fragment)
}

// Claim hands a receiving session to the pipeline: it records the owner and
// declared plan and flushes the buffer to an artifact. A second trigger for
// the same filename fails with ErrSessionClosed, also after completion.
func (r *Registry) Claim(filename, userID string, plan types.Plan, w ArtifactWriter) (*Session, error) {
	s, err := r.Lookup(filename)
	if errors.Is(err, ErrSessionNotFound) && r.closed(filename) {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	if err := s.claim(userID, plan, w); err != nil {
		return s, err
	}
	return s, nil
}

// Tracked reports whether filename belongs to a live or retained session
func (r *Registry) Tracked(filename string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[filename]
	return ok
}

// Len returns the number of sessions held
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns info for every session, ordered by creation time
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}
