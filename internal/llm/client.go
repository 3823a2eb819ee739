package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

type Message struct {
	Role    string
	Content string
}

// Request is a single chat completion call
type Request struct {
	Messages []Message
	// JSON asks the provider for a JSON object response where supported
	JSON      bool
	MaxTokens int
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Settings selects and configures a provider
type Settings struct {
	Provider         string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	Model            string
	YandexOAuthToken string
	YandexFolderID   string
}

// New creates a client for the configured provider
func New(s Settings) (Client, error) {
	switch strings.ToLower(s.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(s.OpenAIAPIKey, s.OpenAIBaseURL, s.Model), nil
	case ProviderYandex:
		return NewYandex(s.YandexOAuthToken, s.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", s.Provider)
	}
}
