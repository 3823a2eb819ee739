package transcription

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber sends recordings to the OpenAI audio transcription API
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a transcriber for the given model
func NewWhisperTranscriber(apiKey, baseURL, model string) *WhisperTranscriber {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Transcribe uploads the file at path and returns the plain-text transcript
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	log.Printf("Transcribing with %s: %s", wt.model, path)

	resp, err := wt.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    wt.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
