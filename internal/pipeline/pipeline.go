package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/recording-processor/internal/cleanup"
	"github.com/codebuildervaibhav/recording-processor/internal/metrics"
	"github.com/codebuildervaibhav/recording-processor/internal/session"
	"github.com/codebuildervaibhav/recording-processor/internal/storage"
	"github.com/codebuildervaibhav/recording-processor/internal/transcription"
	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// Artifacts is the local scratch storage of assembled recordings
type Artifacts interface {
	session.ArtifactWriter
	cleanup.ArtifactRemover
	Path(filename string) string
}

// Uploader puts an artifact into durable object storage
type Uploader interface {
	Upload(ctx context.Context, path, key string) (types.UploadOutcome, error)
}

// Notifier is the system of record
type Notifier interface {
	NotifyProcessingStarted(ctx context.Context, userID, filename string) (types.Plan, error)
	NotifyTranscribed(ctx context.Context, userID, filename, content, transcript string) error
	NotifyComplete(ctx context.Context, userID, filename string) error
}

// Gate decides on and performs transcription
type Gate interface {
	MaybeTranscribe(ctx context.Context, plan types.Plan, path string) transcription.Outcome
}

// Recorder persists recording state for operators
type Recorder interface {
	SaveRecording(rec storage.Recording) error
	UpdateState(filename string, state types.State, reason types.Reason) error
}

// Config wires a pipeline. Recorder, Metrics and OnResult are optional.
type Config struct {
	Registry  *session.Registry
	Artifacts Artifacts
	Uploader  Uploader
	Gate      Gate
	Notifier  Notifier
	Recorder  Recorder
	Metrics   *metrics.Metrics
	// OnResult is called after every finished run
	OnResult func(types.PipelineResult)
}

// Pipeline runs upload, transcription, notifications and cleanup for claimed
// sessions. Each run gets its own goroutine so a slow collaborator only
// stalls that recording.
type Pipeline struct {
	registry  *session.Registry
	artifacts Artifacts
	uploader  Uploader
	gate      Gate
	notifier  Notifier
	recorder  Recorder
	metrics   *metrics.Metrics
	onResult  func(types.PipelineResult)

	wg sync.WaitGroup
}

// New creates a pipeline
func New(cfg Config) *Pipeline {
	return &Pipeline{
		registry:  cfg.Registry,
		artifacts: cfg.Artifacts,
		uploader:  cfg.Uploader,
		gate:      cfg.Gate,
		notifier:  cfg.Notifier,
		recorder:  cfg.Recorder,
		metrics:   cfg.Metrics,
		onResult:  cfg.OnResult,
	}
}

// Process claims the session for req.Filename, flushes it to disk and starts
// the run in the background. It returns once the run has been accepted;
// failures after that point are only visible in logs, metrics and the
// recorder.
func (p *Pipeline) Process(req Request) error {
	s, err := p.registry.Claim(req.Filename, req.UserID, req.Plan, p.artifacts)
	if err != nil {
		if errors.Is(err, session.ErrLocalWriteFailed) {
			log.Printf("Pipeline %s: %s: %v", req.Filename, types.ReasonLocalWriteFailed, err)
			p.persist(s, types.PipelineResult{})
			p.recordResult(types.PipelineResult{
				Filename:      req.Filename,
				UserID:        req.UserID,
				TerminalState: types.StateFailed,
				Reason:        types.ReasonLocalWriteFailed,
			})
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.ArtifactSize.Observe(float64(s.Size()))
	}
	p.persist(s, types.PipelineResult{})

	j := newJob(req, p.artifacts.Path(req.Filename))
	log.Printf("Pipeline %s: accepted (%d bytes, user %s)", j.filename, s.Size(), j.userID)

	p.wg.Add(1)
	go p.runJob(s, j)
	return nil
}

// Wait blocks until every started run has finished
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// runJob executes one run with panic recovery
func (p *Pipeline) runJob(s *session.Session, j *job) {
	defer p.wg.Done()
	if p.metrics != nil {
		p.metrics.PipelineInFlight.Inc()
		defer p.metrics.PipelineInFlight.Dec()
	}

	var result types.PipelineResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Pipeline %s: PANIC: %v\n%s", j.filename, r, string(debug.Stack()))
				s.Fail(types.ReasonPipelinePanic)
				result = types.PipelineResult{
					Filename:      j.filename,
					UserID:        j.userID,
					TerminalState: types.StateFailed,
					Reason:        types.ReasonPipelinePanic,
					StartedAt:     j.createdAt,
					FinishedAt:    time.Now(),
				}
			}
		}()
		result = p.run(context.Background(), s, j)
	}()

	p.persist(s, result)
	p.recordResult(result)
	if p.metrics != nil {
		p.metrics.SetActiveSessions(p.registry.Len())
	}
}

// run is the ordered step sequence for one session
func (p *Pipeline) run(ctx context.Context, s *session.Session, j *job) types.PipelineResult {
	result := types.PipelineResult{
		Filename:  j.filename,
		UserID:    j.userID,
		Plan:      types.PlanFree,
		StartedAt: j.createdAt,
	}
	fail := func(reason types.Reason, err error) types.PipelineResult {
		log.Printf("Pipeline %s: %s: %v", j.filename, reason, err)
		s.Fail(reason)
		p.track(j.filename, types.StateFailed, reason)
		result.TerminalState = types.StateFailed
		result.Reason = reason
		result.FinishedAt = time.Now()
		return result
	}

	// Step 1: register with the system of record; its plan is authoritative
	start := time.Now()
	plan, err := p.notifier.NotifyProcessingStarted(ctx, j.userID, j.filename)
	p.observe("register", start)
	if err != nil {
		p.notifyFailed("processing")
		return fail(types.ReasonProcessingRegistrationFailed, err)
	}
	if plan != j.declaredPlan {
		log.Printf("Pipeline %s: client declared plan %s, system of record says %s", j.filename, j.declaredPlan, plan)
	}
	s.SetPlan(plan)
	result.Plan = plan

	// Step 2: upload
	p.advance(s, types.StateUploading)
	start = time.Now()
	outcome, err := p.uploader.Upload(ctx, j.path, j.filename)
	p.observe("upload", start)
	if err == nil && !outcome.Success {
		err = fmt.Errorf("upload returned status %d", outcome.StatusCode)
	}
	if err != nil {
		return fail(types.ReasonUploadFailed, err)
	}
	p.advance(s, types.StateUploaded)
	result.Uploaded = true
	log.Printf("Pipeline %s: uploaded (HTTP %d)", j.filename, outcome.StatusCode)

	// Step 3: best-effort transcription
	if plan == types.PlanPro {
		p.advance(s, types.StateTranscribing)
	}
	start = time.Now()
	tr, err := p.transcribe(ctx, plan, j.path)
	p.observe("transcribe", start)
	if err != nil {
		log.Printf("Pipeline %s: transcription task failed: %v", j.filename, err)
		tr = transcription.Outcome{SkipReason: types.ReasonTranscriptionFailed}
	}
	result.Transcript = tr.Transcript
	result.Summary = tr.Summary
	result.SkipReason = tr.SkipReason
	if tr.Skipped() && p.metrics != nil {
		p.metrics.RecordTranscriptionSkipped(string(tr.SkipReason))
	}
	if tr.SummaryReason != types.ReasonNone {
		log.Printf("Pipeline %s: %s, notifying with transcript only", j.filename, tr.SummaryReason)
	}

	// Step 4: notifications
	p.advance(s, types.StateNotifying)
	if !tr.Skipped() {
		start = time.Now()
		err := p.notifier.NotifyTranscribed(ctx, j.userID, j.filename, tr.Content, tr.Transcript)
		p.observe("notify_transcribed", start)
		if err != nil {
			p.notifyFailed("transcribe")
			log.Printf("Pipeline %s: %s: %v", j.filename, types.ReasonTranscribeNotifyFailed, err)
		}
	}

	start = time.Now()
	err = p.notifier.NotifyComplete(ctx, j.userID, j.filename)
	p.observe("complete", start)
	if err != nil {
		p.notifyFailed("complete")
		return fail(types.ReasonCompletionRegistrationFailed, err)
	}

	// Step 5: cleanup
	p.advance(s, types.StateComplete)
	if !cleanup.RemoveArtifact(p.artifacts, j.filename) && p.metrics != nil {
		p.metrics.CleanupFailures.Inc()
	}
	p.registry.Complete(j.filename)

	result.TerminalState = types.StateComplete
	result.FinishedAt = time.Now()
	log.Printf("Pipeline %s: complete in %s", j.filename, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	return result
}

type gateResult struct {
	outcome transcription.Outcome
	err     error
}

// transcribe runs the gate as a supervised task: a panic inside it comes
// back as an error on the task's own channel instead of unwinding the run
func (p *Pipeline) transcribe(ctx context.Context, plan types.Plan, path string) (transcription.Outcome, error) {
	done := make(chan gateResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- gateResult{err: fmt.Errorf("transcription panic: %v", r)}
			}
		}()
		done <- gateResult{outcome: p.gate.MaybeTranscribe(ctx, plan, path)}
	}()

	res := <-done
	return res.outcome, res.err
}

func (p *Pipeline) advance(s *session.Session, next types.State) {
	if err := s.Advance(next); err != nil {
		log.Printf("Pipeline %s: %v", s.Filename, err)
		return
	}
	p.track(s.Filename, next, types.ReasonNone)
}

func (p *Pipeline) track(filename string, state types.State, reason types.Reason) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.UpdateState(filename, state, reason); err != nil {
		log.Printf("Pipeline %s: failed to record state %s: %v", filename, state, err)
	}
}

// persist writes the full session row, merging in the run's results
func (p *Pipeline) persist(s *session.Session, result types.PipelineResult) {
	if p.recorder == nil || s == nil {
		return
	}
	info := s.Info()
	rec := storage.Recording{
		Filename:   info.Filename,
		SessionID:  info.SessionID,
		UserID:     info.UserID,
		Plan:       info.Plan,
		State:      info.State,
		Reason:     info.Reason,
		SkipReason: result.SkipReason,
		SizeBytes:  info.Size,
		Transcript: result.Transcript,
		CreatedAt:  info.CreatedAt,
	}
	if result.Summary != nil {
		rec.SummaryTitle = result.Summary.Title
		rec.SummaryDescription = result.Summary.Description
	}
	if err := p.recorder.SaveRecording(rec); err != nil {
		log.Printf("Pipeline %s: failed to persist recording: %v", info.Filename, err)
	}
}

func (p *Pipeline) recordResult(result types.PipelineResult) {
	if p.metrics != nil {
		p.metrics.RecordPipelineResult(string(result.TerminalState), string(result.Reason))
	}
	if p.onResult != nil {
		p.onResult(result)
	}
}

func (p *Pipeline) observe(step string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStep(step, time.Since(start).Seconds())
	}
}

func (p *Pipeline) notifyFailed(call string) {
	if p.metrics != nil {
		p.metrics.RecordNotifyFailure(call)
	}
}
