// Package api реализует клиент бэкенда ассистента: чат, обратная связь,
// поиск документов и health-check.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	chatPath        = "/chat"
	feedbackPath    = "/feedback"
	documentURLPath = "/document-url"
	healthPath      = "/health"

	maxErrorBody = 2048

	healthAttempts = 3
	healthBackoff  = 500 * time.Millisecond
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// SendChat issues the single POST per user turn. A non-2xx status comes back
// as *HTTPError, a 2xx body without an answer as *ContractError; anything
// else is a transport failure.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, chatPath, req, &resp); err != nil {
		return ChatResponse{}, err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return ChatResponse{}, &ContractError{Reason: "empty response field"}
	}
	return resp, nil
}

// SubmitFeedback delivers one rating. Callers treat failure as non-fatal.
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) error {
	return c.postJSON(ctx, feedbackPath, req, nil)
}

// ResolveDocumentURL maps a source filename to a previewable Drive file id.
// An empty id means the backend knows no preview for this document.
func (c *Client) ResolveDocumentURL(ctx context.Context, filename string) (string, error) {
	var resp documentURLResponse
	if err := c.postJSON(ctx, documentURLPath, documentURLRequest{Filename: filename}, &resp); err != nil {
		return "", err
	}
	return resp.DriveFileID, nil
}

// Health pings the backend. The GET is idempotent, so transport failures are
// retried with a short backoff; HTTP and contract errors are not.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var lastErr error
	for attempt := 0; attempt < healthAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return HealthResponse{}, ctx.Err()
			case <-time.After(healthBackoff << (attempt - 1)):
			}
		}
		hr, err := c.healthOnce(ctx)
		if err == nil {
			return hr, nil
		}
		var he *HTTPError
		var ce *ContractError
		if errors.As(err, &he) || errors.As(err, &ce) {
			return HealthResponse{}, err
		}
		lastErr = err
	}
	return HealthResponse{}, lastErr
}

func (c *Client) healthOnce(ctx context.Context) (HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.httpc.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("health request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return HealthResponse{}, &HTTPError{Status: res.StatusCode, Body: readErrorBody(res.Body)}
	}
	var hr HealthResponse
	if err := json.NewDecoder(res.Body).Decode(&hr); err != nil {
		return HealthResponse{}, &ContractError{Reason: fmt.Sprintf("decode health: %v", err)}
	}
	return hr, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{Status: res.StatusCode, Body: readErrorBody(res.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &ContractError{Reason: fmt.Sprintf("decode %s: %v", path, err)}
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
