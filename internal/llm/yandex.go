package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
)

// IAM tokens live for up to 12 hours; renew well before that.
const yandexTokenTTL = time.Hour

const jsonInstruction = "Respond with a single valid JSON object and nothing else."

type yandexCompletion struct {
	content      string
	inputTokens  int
	outputTokens int
	allTokens    int
}

// YandexClient talks to YandexGPT. It has no JSON mode, so JSON requests get
// an extra system instruction. yagpt exposes no completion limit, so
// Request.MaxTokens is not applied.
type YandexClient struct {
	issue    func() (string, error)
	complete func(ctx context.Context, iamToken string, msgs []yagpt.Message) (yandexCompletion, error)
	now      func() time.Time

	mu       sync.Mutex
	iamToken string
	issuedAt time.Time
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	c := &YandexClient{
		issue: func() (string, error) {
			resp, err := iam.Create()
			if err != nil {
				return "", err
			}
			return resp.IamToken, nil
		},
		complete: func(ctx context.Context, iamToken string, msgs []yagpt.Message) (yandexCompletion, error) {
			resp, err := ya.CompletionWithCtx(ctx, iamToken, msgs)
			if err != nil {
				return yandexCompletion{}, err
			}
			if resp == nil || len(resp.Alternatives) == 0 {
				return yandexCompletion{}, nil
			}
			return yandexCompletion{
				content:      resp.Alternatives[0].Message.Content,
				inputTokens:  int(resp.Usage.InputTextTokens),
				outputTokens: int(resp.Usage.CompletionTokens),
				allTokens:    int(resp.Usage.TotalTokens),
			}, nil
		},
		now: time.Now,
	}
	if _, err := c.token(); err != nil {
		return nil, err
	}
	return c, nil
}

// token returns a cached IAM token, issuing a new one once it gets old
func (c *YandexClient) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.iamToken != "" && c.now().Sub(c.issuedAt) < yandexTokenTTL {
		return c.iamToken, nil
	}
	tok, err := c.issue()
	if err != nil {
		return "", fmt.Errorf("failed to create iam token: %w", err)
	}
	c.iamToken = tok
	c.issuedAt = c.now()
	return tok, nil
}

func (c *YandexClient) Generate(ctx context.Context, r Request) (Response, error) {
	tok, err := c.token()
	if err != nil {
		return Response{}, err
	}

	messages := make([]yagpt.Message, 0, len(r.Messages)+1)
	if r.JSON {
		messages = append(messages, yagpt.Message{Role: "system", Content: jsonInstruction})
	}
	for _, m := range r.Messages {
		messages = append(messages, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	out, err := c.complete(ctx, tok, messages)
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if out.content == "" {
		return Response{}, fmt.Errorf("yagpt returned empty response")
	}
	return Response{
		Content:          out.content,
		Model:            yagpt.YaModelLite,
		PromptTokens:     out.inputTokens,
		CompletionTokens: out.outputTokens,
		TotalTokens:      out.allTokens,
	}, nil
}
