package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrSessionClosed     = errors.New("session is no longer receiving")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrLocalWriteFailed  = errors.New("local artifact write failed")
)

// ArtifactWriter persists the assembled fragments of a recording
type ArtifactWriter interface {
	WriteArtifact(filename string, parts [][]byte) (int64, error)
}

// Session tracks one in-progress recording
type Session struct {
	SessionID string
	Filename  string
	CreatedAt time.Time

	mu        sync.Mutex
	userID    string
	plan      types.Plan
	buffer    [][]byte
	buffered  int64
	state     types.State
	reason    types.Reason
	failedAt  types.State
	size      int64
	updatedAt time.Time
}

// Info is a point-in-time copy of a session's public fields
type Info struct {
	SessionID     string       `json:"session_id"`
	Filename      string       `json:"filename"`
	UserID        string       `json:"user_id"`
	Plan          types.Plan   `json:"plan"`
	State         types.State  `json:"state"`
	Reason        types.Reason `json:"reason,omitempty"`
	FailedAt      types.State  `json:"failed_at,omitempty"`
	BufferedBytes int64        `json:"buffered_bytes"`
	Size          int64        `json:"size"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func newSession(sessionID, filename string) *Session {
	now := time.Now()
	return &Session{
		SessionID: sessionID,
		Filename:  filename,
		CreatedAt: now,
		state:     types.StateReceiving,
		plan:      types.PlanFree,
		updatedAt: now,
	}
}

// Append adds a fragment to the end of the buffer
func (s *Session) Append(fragment []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.StateReceiving {
		return ErrSessionClosed
	}

	// The transport may reuse its read buffer.
	part := make([]byte, len(fragment))
	copy(part, fragment)
	s.buffer = append(s.buffer, part)
	s.buffered += int64(len(part))
	s.updatedAt = time.Now()
	return nil
}

// Flush writes the buffered fragments as one artifact and clears the buffer.
// The session moves to ASSEMBLED on success and to FAILED otherwise.
func (s *Session) Flush(w ArtifactWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(w)
}

// claim binds the owner and declared plan, then flushes. Only the first
// trigger for a receiving session gets past the state check.
func (s *Session) claim(userID string, plan types.Plan, w ArtifactWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.StateReceiving {
		return ErrSessionClosed
	}
	s.userID = userID
	s.plan = plan
	return s.flushLocked(w)
}

func (s *Session) flushLocked(w ArtifactWriter) error {
	if s.state != types.StateReceiving {
		return ErrSessionClosed
	}

	size, err := w.WriteArtifact(s.Filename, s.buffer)
	if err != nil {
		s.failLocked(types.ReasonLocalWriteFailed)
		return fmt.Errorf("%w: %v", ErrLocalWriteFailed, err)
	}

	s.buffer = nil
	s.buffered = 0
	s.size = size
	s.state = types.StateAssembled
	s.updatedAt = time.Now()
	return nil
}

// Advance moves the session forward to next
func (s *Session) Advance(next types.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next == types.StateFailed || !s.state.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	s.updatedAt = time.Now()
	return nil
}

// Fail moves the session to FAILED, remembering the state it failed in
func (s *Session) Fail(reason types.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, types.StateFailed)
	}
	s.failLocked(reason)
	return nil
}

func (s *Session) failLocked(reason types.Reason) {
	s.failedAt = s.state
	s.state = types.StateFailed
	s.reason = reason
	s.updatedAt = time.Now()
}

// SetPlan replaces the plan with the authoritative value
func (s *Session) SetPlan(p types.Plan) {
	s.mu.Lock()
	s.plan = p
	s.mu.Unlock()
}

// State returns the current state
func (s *Session) State() types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns why the session failed, if it did
func (s *Session) Reason() types.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// UserID returns the owner bound by the trigger
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Plan returns the declared plan, or the authoritative one once set
func (s *Session) Plan() types.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Size returns the artifact size, valid once the session is assembled
func (s *Session) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		SessionID:     s.SessionID,
		Filename:      s.Filename,
		UserID:        s.userID,
		Plan:          s.plan,
		State:         s.state,
		Reason:        s.reason,
		FailedAt:      s.failedAt,
		BufferedBytes: s.buffered,
		Size:          s.size,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.updatedAt,
	}
}
