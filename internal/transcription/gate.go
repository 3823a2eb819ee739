package transcription

import (
	"context"
	"log"
	"os"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// MaxTranscriptionBytes is the speech-to-text upload ceiling
const MaxTranscriptionBytes = 25_000_000

// Transcriber turns an audio/video file into text
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Summarizer produces a raw structured title/summary payload for a transcript
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Outcome is what the gate produced for one recording
type Outcome struct {
	Ran        bool
	Transcript string
	SkipReason types.Reason

	// Content is the raw summary payload forwarded to the system of record,
	// empty when the summary is unavailable
	Content string
	Summary *types.Summary
	// SummaryReason is set when transcription ran but summarization did not
	// produce a usable result
	SummaryReason types.Reason
}

// Skipped reports whether no transcript was produced
func (o Outcome) Skipped() bool {
	return o.Transcript == ""
}

// Gate decides whether a recording is transcribed and summarized
type Gate struct {
	transcriber Transcriber
	summarizer  Summarizer
	maxBytes    int64
}

// NewGate creates a gate with the default size ceiling
func NewGate(transcriber Transcriber, summarizer Summarizer) *Gate {
	return &Gate{
		transcriber: transcriber,
		summarizer:  summarizer,
		maxBytes:    MaxTranscriptionBytes,
	}
}

// MaybeTranscribe applies the plan and size policy, then transcribes and
// summarizes. It never fails the caller: problems come back as reasons.
func (g *Gate) MaybeTranscribe(ctx context.Context, plan types.Plan, path string) Outcome {
	if plan != types.PlanPro {
		return Outcome{SkipReason: types.ReasonPlanNotEligible}
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Printf("Transcription skipped, cannot stat %s: %v", path, err)
		return Outcome{SkipReason: types.ReasonTranscriptionFailed}
	}
	if info.Size() >= g.maxBytes {
		log.Printf("Transcription skipped for %s: %d bytes exceeds limit", path, info.Size())
		return Outcome{SkipReason: types.ReasonArtifactTooLarge}
	}

	transcript, err := g.transcriber.Transcribe(ctx, path)
	if err != nil {
		log.Printf("Transcription failed for %s: %v", path, err)
		return Outcome{Ran: true, SkipReason: types.ReasonTranscriptionFailed}
	}
	if transcript == "" {
		return Outcome{Ran: true, SkipReason: types.ReasonEmptyTranscript}
	}

	out := Outcome{Ran: true, Transcript: transcript}

	content, err := g.summarizer.Summarize(ctx, transcript)
	if err != nil {
		log.Printf("Summary generation failed for %s: %v", path, err)
		out.SummaryReason = types.ReasonSummaryParseFailed
		return out
	}

	summary, err := ParseSummary(content)
	if err != nil {
		log.Printf("Summary for %s unusable: %v", path, err)
		out.SummaryReason = types.ReasonSummaryParseFailed
		return out
	}

	out.Content = content
	out.Summary = summary
	return out
}
