package session

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

type memWriter struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemWriter() *memWriter {
	return &memWriter{files: make(map[string][]byte)}
}

func (w *memWriter) WriteArtifact(filename string, parts [][]byte) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[filename] = bytes.Join(parts, nil)
	return int64(len(w.files[filename])), nil
}

func (w *memWriter) get(filename string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.files[filename]
	return b, ok
}

func TestAppendChunkPreservesArrivalOrder(t *testing.T) {
	r := NewRegistry()
	w := newMemWriter()

	fragments := [][]byte{[]byte("one-"), []byte("two-"), {}, []byte("three")}
	for i, f := range fragments {
		created, err := r.AppendChunk("conn-1", "rec.webm", f)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if created != (i == 0) {
			t.Fatalf("append %d: created=%v", i, created)
		}
	}

	s, err := r.Claim("rec.webm", "user-1", types.PlanPro, w)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	got, _ := w.get("rec.webm")
	if string(got) != "one-two-three" {
		t.Fatalf("artifact = %q", got)
	}
	if s.State() != types.StateAssembled {
		t.Fatalf("state = %s", s.State())
	}
	if s.Size() != int64(len("one-two-three")) {
		t.Fatalf("size = %d", s.Size())
	}
	if info := s.Info(); info.BufferedBytes != 0 || info.UserID != "user-1" || info.Plan != types.PlanPro {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestAppendChunkCopiesFragment(t *testing.T) {
	r := NewRegistry()
	w := newMemWriter()

	buf := []byte("abc")
	if _, err := r.AppendChunk("c", "f.webm", buf); err != nil {
		t.Fatalf("append: %v", err)
	}
	copy(buf, "xyz")

	if _, err := r.Claim("f.webm", "u", types.PlanFree, w); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got, _ := w.get("f.webm"); string(got) != "abc" {
		t.Fatalf("artifact = %q", got)
	}
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	r := NewRegistry()
	w := newMemWriter()

	const sessions = 8
	const chunks = 200

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("rec-%d.webm", i)
			for j := 0; j < chunks; j++ {
				if _, err := r.AppendChunk(fmt.Sprintf("conn-%d", i), name, []byte{byte(i)}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		name := fmt.Sprintf("rec-%d.webm", i)
		if _, err := r.Claim(name, "u", types.PlanFree, w); err != nil {
			t.Fatalf("claim %s: %v", name, err)
		}
		got, _ := w.get(name)
		if len(got) != chunks {
			t.Fatalf("%s: len = %d", name, len(got))
		}
		if !bytes.Equal(got, bytes.Repeat([]byte{byte(i)}, chunks)) {
			t.Fatalf("%s: foreign bytes in artifact", name)
		}
	}
}

func TestClaimRejectsDuplicateTrigger(t *testing.T) {
	r := NewRegistry()
	w := newMemWriter()

	if _, err := r.AppendChunk("c", "dup.webm", []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.Claim("dup.webm", "u", types.PlanFree, w); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := r.Claim("dup.webm", "u", types.PlanFree, w); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second claim err = %v", err)
	}
	if _, err := r.AppendChunk("c", "dup.webm", []byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("late append err = %v", err)
	}
}

func TestClaimUnknownFilename(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Claim("missing.webm", "u", types.PlanPro, newMemWriter()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestClaimWriteFailureMarksSessionFailed(t *testing.T) {
	r := NewRegistry()
	w := newMemWriter()
	w.err = errors.New("disk full")

	if _, err := r.AppendChunk("c", "bad.webm", []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	s, err := r.Claim("bad.webm", "u", types.PlanPro, w)
	if !errors.Is(err, ErrLocalWriteFailed) {
		t.Fatalf("err = %v", err)
	}
	if s.State() != types.StateFailed || s.Reason() != types.ReasonLocalWriteFailed {
		t.Fatalf("state = %s reason = %s", s.State(), s.Reason())
	}
	if !r.Tracked("bad.webm") {
		t.Fatalf("failed session should be retained")
	}
}

func TestCreateAtMostOnePerFilename(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("c1", "a.webm", "u", types.PlanFree); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Create("c2", "a.webm", "u", types.PlanFree); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("err = %v", err)
	}
	r.Remove("a.webm")
	if _, err := r.Lookup("a.webm"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("lookup after remove err = %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestStateTransitionsAreForwardOnly(t *testing.T) {
	s := newSession("c", "f.webm")
	// skipping ahead is a forward move
	if err := s.Advance(types.StateUploading); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.Advance(types.StateAssembled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("backward transition err = %v", err)
	}
	if err := s.Advance(types.StateUploaded); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.Fail(types.ReasonCompletionRegistrationFailed); err != nil {
		t.Fatalf("fail: %v", err)
	}
	info := s.Info()
	if info.State != types.StateFailed || info.FailedAt != types.StateUploaded {
		t.Fatalf("unexpected info: %+v", info)
	}
	if err := s.Advance(types.StateComplete); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance from FAILED err = %v", err)
	}
	if err := s.Fail(types.ReasonUploadFailed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double fail err = %v", err)
	}
}

type completedSet map[string]bool

func (c completedSet) Completed(filename string) bool { return c[filename] }

func TestCompletedFilenameStaysClosed(t *testing.T) {
	r := NewRegistry()
	w := newMemWriter()
	if _, err := r.AppendChunk("c", "done.webm", []byte("full")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.Claim("done.webm", "u", types.PlanFree, w); err != nil {
		t.Fatalf("claim: %v", err)
	}
	r.Complete("done.webm")

	if _, err := r.AppendChunk("c", "done.webm", []byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("late append err = %v", err)
	}
	if _, err := r.Claim("done.webm", "u", types.PlanFree, w); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second claim err = %v", err)
	}
	if r.Len() != 0 || r.Tracked("done.webm") {
		t.Fatalf("completed session should be released")
	}
	if got, _ := w.get("done.webm"); string(got) != "full" {
		t.Fatalf("artifact = %q", got)
	}
}

func TestHistoryClosesFilenamesAfterRestart(t *testing.T) {
	r := NewRegistry()
	r.SetHistory(completedSet{"old.webm": true})

	if _, err := r.AppendChunk("c", "old.webm", []byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("append err = %v", err)
	}
	if _, err := r.Claim("old.webm", "u", types.PlanFree, newMemWriter()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("claim err = %v", err)
	}
	if created, err := r.AppendChunk("c", "new.webm", []byte("x")); err != nil || !created {
		t.Fatalf("new filename: created=%v err=%v", created, err)
	}
}
