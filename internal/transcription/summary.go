package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/recording-processor/internal/llm"
	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// ErrSummaryParse is returned when the model output is not a usable summary
var ErrSummaryParse = errors.New("summary payload could not be parsed")

const summaryInstruction = `You are going to generate a title and a nice description using the speech to text transcription provided: transcription(%s) and then return it in json format as {"title": <the title you gave>, "summary": <the summary you created>}`

// LLMSummarizer asks a chat model for a title and summary of a transcript
type LLMSummarizer struct {
	client llm.Client
}

// NewLLMSummarizer creates a summarizer backed by client
func NewLLMSummarizer(client llm.Client) *LLMSummarizer {
	return &LLMSummarizer{client: client}
}

// Summarize returns the raw model output
func (s *LLMSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := s.client.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(summaryInstruction, transcript)},
		},
		JSON: true,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ParseSummary decodes a model payload into a Summary. Both "summary" and
// "description" are accepted for the body; a title is required.
func ParseSummary(content string) (*types.Summary, error) {
	content = strings.TrimSpace(content)
	// some providers wrap JSON in a markdown fence
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload struct {
		Title       string `json:"title"`
		Summary     string `json:"summary"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummaryParse, err)
	}

	desc := payload.Summary
	if desc == "" {
		desc = payload.Description
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrSummaryParse)
	}

	return &types.Summary{
		Title:       strings.TrimSpace(payload.Title),
		Description: strings.TrimSpace(desc),
	}, nil
}
