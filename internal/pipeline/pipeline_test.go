package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
	"github.com/codebuildervaibhav/recording-processor/internal/session"
	"github.com/codebuildervaibhav/recording-processor/internal/storage"
	"github.com/codebuildervaibhav/recording-processor/internal/transcription"
	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

type transcribedCall struct {
	userID, filename, content, transcript string
}

type fakeNotifier struct {
	mu sync.Mutex

	plan          types.Plan
	processingErr error
	transcribeErr error
	completeErr   error

	calls       []string
	transcribed []transcribedCall
}

func (f *fakeNotifier) NotifyProcessingStarted(ctx context.Context, userID, filename string) (types.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "processing")
	if f.processingErr != nil {
		return "", f.processingErr
	}
	if f.plan == "" {
		return types.PlanFree, nil
	}
	return f.plan, nil
}

func (f *fakeNotifier) NotifyTranscribed(ctx context.Context, userID, filename, content, transcript string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "transcribe")
	f.transcribed = append(f.transcribed, transcribedCall{userID, filename, content, transcript})
	return f.transcribeErr
}

func (f *fakeNotifier) NotifyComplete(ctx context.Context, userID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "complete")
	return f.completeErr
}

func (f *fakeNotifier) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeUploader struct {
	mu      sync.Mutex
	outcome types.UploadOutcome
	err     error
	panics  bool
	keys    []string
	bodies  [][]byte
}

func (f *fakeUploader) Upload(ctx context.Context, path, key string) (types.UploadOutcome, error) {
	if f.panics {
		panic("uploader exploded")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.UploadOutcome{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, data)
	if f.err != nil {
		return types.UploadOutcome{}, f.err
	}
	if f.outcome.StatusCode == 0 {
		return types.UploadOutcome{Success: true, StatusCode: 200}, nil
	}
	return f.outcome, nil
}

func (f *fakeUploader) uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

type fakeTranscriber struct {
	text   string
	err    error
	panics bool
	calls  int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f.calls++
	if f.panics {
		panic("decoder crashed")
	}
	return f.text, f.err
}

type fakeSummarizer struct {
	content string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	return f.content, f.err
}

const summaryJSON = `{"title":"Weekly sync","summary":"Team discussed the roadmap."}`

type harness struct {
	registry *session.Registry
	local    *storage.LocalStorage
	uploader *fakeUploader
	notifier *fakeNotifier
	tr       *fakeTranscriber
	metrics  *metrics.Metrics
	pipeline *Pipeline

	mu      sync.Mutex
	results []types.PipelineResult
}

func newHarness(t *testing.T, recorder Recorder) *harness {
	t.Helper()
	h := &harness{
		registry: session.NewRegistry(),
		local:    storage.NewLocalStorage(t.TempDir()),
		uploader: &fakeUploader{},
		notifier: &fakeNotifier{},
		tr:       &fakeTranscriber{text: "hello team"},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	gate := transcription.NewGate(h.tr, &fakeSummarizer{content: summaryJSON})
	h.pipeline = New(Config{
		Registry:  h.registry,
		Artifacts: h.local,
		Uploader:  h.uploader,
		Gate:      gate,
		Notifier:  h.notifier,
		Recorder:  recorder,
		Metrics:   h.metrics,
		OnResult: func(r types.PipelineResult) {
			h.mu.Lock()
			h.results = append(h.results, r)
			h.mu.Unlock()
		},
	})
	return h
}

func (h *harness) record(t *testing.T, filename string, chunks ...string) {
	t.Helper()
	for _, c := range chunks {
		if _, err := h.registry.AppendChunk("sock-1", filename, []byte(c)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func (h *harness) run(t *testing.T, req Request) types.PipelineResult {
	t.Helper()
	if err := h.pipeline.Process(req); err != nil {
		t.Fatalf("process: %v", err)
	}
	h.pipeline.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		t.Fatalf("no result reported")
	}
	return h.results[len(h.results)-1]
}

func equalCalls(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFreeRecordingIsUploadedAndCleanedUp(t *testing.T) {
	h := newHarness(t, nil)
	h.record(t, "rec1.webm", "AAA", "BBB", "CCC")

	res := h.run(t, Request{Filename: "rec1.webm", UserID: "u1", Plan: types.PlanFree})

	if res.TerminalState != types.StateComplete || !res.Uploaded {
		t.Fatalf("result = %+v", res)
	}
	if res.SkipReason != types.ReasonPlanNotEligible {
		t.Fatalf("skip reason = %q", res.SkipReason)
	}
	if got := string(h.uploader.bodies[0]); got != "AAABBBCCC" {
		t.Fatalf("uploaded body = %q", got)
	}
	if h.uploader.keys[0] != "rec1.webm" {
		t.Fatalf("upload key = %q", h.uploader.keys[0])
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
	if _, err := os.Stat(h.local.Path("rec1.webm")); !os.IsNotExist(err) {
		t.Fatalf("artifact should be deleted, stat err = %v", err)
	}
	if _, err := h.registry.Lookup("rec1.webm"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("session should be released, err = %v", err)
	}
}

func TestProRecordingIsTranscribedAndSummarized(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.plan = types.PlanPro
	chunk := strings.Repeat("x", 1<<20/3)
	h.record(t, "rec2.webm", chunk, chunk, chunk+"y")

	res := h.run(t, Request{Filename: "rec2.webm", UserID: "u2", Plan: types.PlanPro})

	if res.TerminalState != types.StateComplete {
		t.Fatalf("result = %+v", res)
	}
	if got := len(h.uploader.bodies[0]); got != 3*len(chunk)+1 {
		t.Fatalf("uploaded %d bytes", got)
	}
	if _, err := os.Stat(h.local.Path("rec2.webm")); !os.IsNotExist(err) {
		t.Fatalf("artifact should be deleted, stat err = %v", err)
	}
	if res.Transcript != "hello team" || res.Summary == nil || res.Summary.Title != "Weekly sync" {
		t.Fatalf("transcript/summary = %q / %+v", res.Transcript, res.Summary)
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "transcribe", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
	got := h.notifier.transcribed[0]
	if got.userID != "u2" || got.filename != "rec2.webm" || got.content != summaryJSON || got.transcript != "hello team" {
		t.Fatalf("transcribed call = %+v", got)
	}
}

func TestProRecordingTooLargeSkipsTranscription(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.plan = types.PlanPro
	big := make([]byte, transcription.MaxTranscriptionBytes)
	if _, err := h.registry.AppendChunk("sock-1", "rec3.webm", big); err != nil {
		t.Fatalf("append: %v", err)
	}

	res := h.run(t, Request{Filename: "rec3.webm", UserID: "u3", Plan: types.PlanPro})

	if res.TerminalState != types.StateComplete || !res.Uploaded {
		t.Fatalf("result = %+v", res)
	}
	if res.SkipReason != types.ReasonArtifactTooLarge {
		t.Fatalf("skip reason = %q", res.SkipReason)
	}
	if h.tr.calls != 0 {
		t.Fatalf("transcriber called %d times", h.tr.calls)
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
	if got := testutil.ToFloat64(h.metrics.TranscriptionSkipped.WithLabelValues(string(types.ReasonArtifactTooLarge))); got != 1 {
		t.Fatalf("skipped metric = %v", got)
	}
}

func TestProcessingRegistrationFailureStopsBeforeUpload(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.processingErr = errors.New("connection refused")
	h.record(t, "rec4.webm", "data")

	res := h.run(t, Request{Filename: "rec4.webm", UserID: "u4", Plan: types.PlanPro})

	if res.TerminalState != types.StateFailed || res.Reason != types.ReasonProcessingRegistrationFailed {
		t.Fatalf("result = %+v", res)
	}
	if h.uploader.uploads() != 0 {
		t.Fatalf("upload must not be attempted")
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing") {
		t.Fatalf("notifier calls = %v", calls)
	}
	s, err := h.registry.Lookup("rec4.webm")
	if err != nil || s.State() != types.StateFailed {
		t.Fatalf("failed session should be retained, err = %v", err)
	}
	if _, err := os.Stat(h.local.Path("rec4.webm")); err != nil {
		t.Fatalf("artifact should be kept: %v", err)
	}
}

func TestUploadFailureSkipsNotifications(t *testing.T) {
	for name, up := range map[string]*fakeUploader{
		"rejected": {outcome: types.UploadOutcome{Success: false, StatusCode: 403}},
		"error":    {err: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.uploader = up
			h.pipeline.uploader = up
			h.record(t, "rec5.webm", "data")

			res := h.run(t, Request{Filename: "rec5.webm", UserID: "u5"})

			if res.TerminalState != types.StateFailed || res.Reason != types.ReasonUploadFailed || res.Uploaded {
				t.Fatalf("result = %+v", res)
			}
			if calls := h.notifier.callLog(); !equalCalls(calls, "processing") {
				t.Fatalf("notifier calls = %v", calls)
			}
			if _, err := os.Stat(h.local.Path("rec5.webm")); err != nil {
				t.Fatalf("artifact should be kept: %v", err)
			}
		})
	}
}

func TestCompletionFailureKeepsArtifact(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.completeErr = errors.New("503")
	h.record(t, "rec6.webm", "data")

	res := h.run(t, Request{Filename: "rec6.webm", UserID: "u6"})

	if res.TerminalState != types.StateFailed || res.Reason != types.ReasonCompletionRegistrationFailed {
		t.Fatalf("result = %+v", res)
	}
	if !res.Uploaded {
		t.Fatalf("upload should have succeeded")
	}
	if _, err := os.Stat(h.local.Path("rec6.webm")); err != nil {
		t.Fatalf("artifact should be kept: %v", err)
	}
	s, err := h.registry.Lookup("rec6.webm")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info := s.Info(); info.FailedAt != types.StateNotifying {
		t.Fatalf("failed at = %q", info.FailedAt)
	}
	if got := testutil.ToFloat64(h.metrics.NotifyFailures.WithLabelValues("complete")); got != 1 {
		t.Fatalf("notify failure metric = %v", got)
	}
}

func TestTranscribedNotifyFailureStillCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.plan = types.PlanPro
	h.notifier.transcribeErr = errors.New("bad gateway")
	h.record(t, "rec7.webm", "data")

	res := h.run(t, Request{Filename: "rec7.webm", UserID: "u7", Plan: types.PlanPro})

	if res.TerminalState != types.StateComplete {
		t.Fatalf("result = %+v", res)
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "transcribe", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
}

func TestDeclaredPlanIsNotTrusted(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.plan = types.PlanFree
	h.record(t, "rec8.webm", "data")

	res := h.run(t, Request{Filename: "rec8.webm", UserID: "u8", Plan: types.PlanPro})

	if res.Plan != types.PlanFree || res.SkipReason != types.ReasonPlanNotEligible {
		t.Fatalf("result = %+v", res)
	}
	if h.tr.calls != 0 {
		t.Fatalf("transcriber called %d times", h.tr.calls)
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
}

func TestDuplicateTriggerIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.record(t, "rec9.webm", "data")

	if err := h.pipeline.Process(Request{Filename: "rec9.webm", UserID: "u9"}); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	err := h.pipeline.Process(Request{Filename: "rec9.webm", UserID: "u9"})
	if !errors.Is(err, session.ErrSessionClosed) && !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("second trigger err = %v", err)
	}
	h.pipeline.Wait()

	if h.uploader.uploads() != 1 {
		t.Fatalf("uploads = %d", h.uploader.uploads())
	}
}

func TestCompletedRecordingIgnoresLateChunksAndTriggers(t *testing.T) {
	h := newHarness(t, nil)
	h.record(t, "rec14.webm", "full-recording")
	h.run(t, Request{Filename: "rec14.webm", UserID: "u14"})

	if _, err := h.registry.AppendChunk("sock-1", "rec14.webm", []byte("late")); !errors.Is(err, session.ErrSessionClosed) {
		t.Fatalf("late chunk err = %v", err)
	}
	err := h.pipeline.Process(Request{Filename: "rec14.webm", UserID: "u14"})
	if !errors.Is(err, session.ErrSessionClosed) {
		t.Fatalf("second trigger err = %v", err)
	}
	h.pipeline.Wait()

	if h.uploader.uploads() != 1 || string(h.uploader.bodies[0]) != "full-recording" {
		t.Fatalf("uploads = %d", h.uploader.uploads())
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
}

func TestUnknownFilenameIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	err := h.pipeline.Process(Request{Filename: "missing.webm", UserID: "u"})
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v", err)
	}
	if len(h.notifier.callLog()) != 0 {
		t.Fatalf("no notification expected")
	}
}

func TestTranscriberPanicIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.plan = types.PlanPro
	h.tr.panics = true
	h.record(t, "rec10.webm", "data")

	res := h.run(t, Request{Filename: "rec10.webm", UserID: "u10", Plan: types.PlanPro})

	if res.TerminalState != types.StateComplete || res.SkipReason != types.ReasonTranscriptionFailed {
		t.Fatalf("result = %+v", res)
	}
	if calls := h.notifier.callLog(); !equalCalls(calls, "processing", "complete") {
		t.Fatalf("notifier calls = %v", calls)
	}
}

func TestPipelinePanicFailsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.uploader.panics = true
	h.record(t, "rec11.webm", "data")

	res := h.run(t, Request{Filename: "rec11.webm", UserID: "u11"})

	if res.TerminalState != types.StateFailed || res.Reason != types.ReasonPipelinePanic {
		t.Fatalf("result = %+v", res)
	}
	s, err := h.registry.Lookup("rec11.webm")
	if err != nil || s.State() != types.StateFailed {
		t.Fatalf("session should be retained as failed, err = %v", err)
	}
}

func TestLocalWriteFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.record(t, "rec12.webm", "data")
	// a scratch dir that does not exist makes the write fail
	blocked := filepath.Join(h.local.Dir(), "gone")
	h.pipeline.artifacts = storage.NewLocalStorage(blocked)

	err := h.pipeline.Process(Request{Filename: "rec12.webm", UserID: "u12"})
	if !errors.Is(err, session.ErrLocalWriteFailed) {
		t.Fatalf("err = %v", err)
	}
	s, lookupErr := h.registry.Lookup("rec12.webm")
	if lookupErr != nil || s.Reason() != types.ReasonLocalWriteFailed {
		t.Fatalf("session = %v, err = %v", s, lookupErr)
	}
	if len(h.notifier.callLog()) != 0 {
		t.Fatalf("no notification expected")
	}
}

func TestRecorderTracksFinalState(t *testing.T) {
	db, err := storage.NewMetadataDB(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	h := newHarness(t, db)
	h.notifier.plan = types.PlanPro
	h.record(t, "rec13.webm", "data")
	h.run(t, Request{Filename: "rec13.webm", UserID: "u13", Plan: types.PlanPro})

	rec, err := db.GetRecording("rec13.webm")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != types.StateComplete || rec.UserID != "u13" || rec.Plan != types.PlanPro {
		t.Fatalf("recording = %+v", rec)
	}
	if rec.Transcript != "hello team" || rec.SummaryTitle != "Weekly sync" {
		t.Fatalf("transcript/summary = %q / %q", rec.Transcript, rec.SummaryTitle)
	}
}
