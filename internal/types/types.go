package types

import "time"

// State is the lifecycle state of a recording session
type State string

// Session states, in pipeline order. FAILED may follow any non-terminal state.
const (
	StateReceiving    State = "RECEIVING"
	StateAssembled    State = "ASSEMBLED"
	StateUploading    State = "UPLOADING"
	StateUploaded     State = "UPLOADED"
	StateTranscribing State = "TRANSCRIBING"
	StateNotifying    State = "NOTIFYING"
	StateComplete     State = "COMPLETE"
	StateFailed       State = "FAILED"
)

var stateOrder = map[State]int{
	StateReceiving:    0,
	StateAssembled:    1,
	StateUploading:    2,
	StateUploaded:     3,
	StateTranscribing: 4,
	StateNotifying:    5,
	StateComplete:     6,
}

// Terminal reports whether no further transition is allowed from s
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanAdvanceTo reports whether moving from s to next is a forward transition
func (s State) CanAdvanceTo(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	cur, ok := stateOrder[s]
	if !ok {
		return false
	}
	n, ok := stateOrder[next]
	return ok && n > cur
}

// Plan is the subscription tier of a recording's owner
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// ParsePlan maps a wire value to a Plan; anything unknown is FREE
func ParsePlan(s string) Plan {
	if Plan(s) == PlanPro {
		return PlanPro
	}
	return PlanFree
}

// Reason codes attached to failed sessions and skipped steps
type Reason string

const (
	ReasonNone                         Reason = ""
	ReasonLocalWriteFailed             Reason = "LOCAL_WRITE_FAILED"
	ReasonUploadFailed                 Reason = "UPLOAD_FAILED"
	ReasonProcessingRegistrationFailed Reason = "PROCESSING_REGISTRATION_FAILED"
	ReasonArtifactTooLarge             Reason = "ARTIFACT_TOO_LARGE"
	ReasonEmptyTranscript              Reason = "EMPTY_TRANSCRIPT"
	ReasonSummaryParseFailed           Reason = "SUMMARY_PARSE_FAILED"
	ReasonTranscribeNotifyFailed       Reason = "TRANSCRIBE_NOTIFY_FAILED"
	ReasonCompletionRegistrationFailed Reason = "COMPLETION_REGISTRATION_FAILED"
	ReasonPlanNotEligible              Reason = "PLAN_NOT_ELIGIBLE"
	ReasonTranscriptionFailed          Reason = "TRANSCRIPTION_FAILED"
	ReasonPipelinePanic                Reason = "PIPELINE_PANIC"
)

// Summary is the generated title and description of a recording
type Summary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UploadOutcome is the interpreted result of a single object put
type UploadOutcome struct {
	Success    bool
	StatusCode int
}

// PipelineResult is the outcome of one processing run
type PipelineResult struct {
	Filename      string
	UserID        string
	Plan          Plan
	Uploaded      bool
	Transcript    string
	Summary       *Summary
	SkipReason    Reason
	TerminalState State
	Reason        Reason
	StartedAt     time.Time
	FinishedAt    time.Time
}
