package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// StatusError means the system of record answered but did not report success
type StatusError struct {
	Call       string
	HTTPStatus int
	Status     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: system of record returned status %d (http %d)", e.Call, e.Status, e.HTTPStatus)
}

type statusResponse struct {
	Status int    `json:"status"`
	Plan   string `json:"plan,omitempty"`
}

// Client calls the recording endpoints of the system of record
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL, e.g. "https://app.example.com/api/"
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NotifyProcessingStarted registers the recording and returns the owner's
// plan as the system of record knows it
func (c *Client) NotifyProcessingStarted(ctx context.Context, userID, filename string) (types.Plan, error) {
	resp, err := c.post(ctx, userID, "processing", map[string]string{
		"filename": filename,
	})
	if err != nil {
		return types.PlanFree, err
	}
	return types.ParsePlan(resp.Plan), nil
}

// NotifyTranscribed sends the transcript and the raw summary payload
func (c *Client) NotifyTranscribed(ctx context.Context, userID, filename, content, transcript string) error {
	_, err := c.post(ctx, userID, "transcribe", map[string]string{
		"filename":   filename,
		"content":    content,
		"transcript": transcript,
	})
	return err
}

// NotifyComplete marks the recording as fully processed
func (c *Client) NotifyComplete(ctx context.Context, userID, filename string) error {
	_, err := c.post(ctx, userID, "complete", map[string]string{
		"filename": filename,
	})
	return err
}

func (c *Client) post(ctx context.Context, userID, action string, body any) (*statusResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode request: %w", action, err)
	}

	endpoint := c.baseURL + "recording/" + url.PathEscape(userID) + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", action, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", action, err)
	}

	var out statusResponse
	if err := json.Unmarshal(data, &out); err != nil {
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, &StatusError{Call: action, HTTPStatus: res.StatusCode}
		}
		return nil, fmt.Errorf("%s: failed to decode response: %w", action, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 || out.Status != http.StatusOK {
		return &out, &StatusError{Call: action, HTTPStatus: res.StatusCode, Status: out.Status}
	}

	return &out, nil
}
