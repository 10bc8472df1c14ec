// Package mindwell is the Go client for the counseling thread API:
// a thin REST wrapper, a websocket subscriber and an optimistic-send
// reconciler for building responsive chat frontends.
package mindwell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mindwell-dev/mindwell/internal/api"
	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
)

// APIClient handles all communication with the backend API.
type APIClient struct {
	BaseURL    string
	HttpClient *http.Client

	// Bearer token attached to every request. Set it from your auth
	// flow or let AnonymousSession fill it in.
	Token string
}

func New(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    baseURL,
		HttpClient: &http.Client{},
	}
}

// do is the single, unified helper for making API requests.
func (c *APIClient) do(method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend unavailable: %w", err)
	}
	return resp, nil
}

func (c *APIClient) decodeOrError(resp *http.Response, wantStatus int, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &internal_errors.ErrorWithStatusCode{
			Message: string(bodyBytes), StatusCode: resp.StatusCode,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cannot decode response: %w", err)
	}
	return nil
}

// AnonymousSession obtains a server-issued anonymous student session
// and uses it for subsequent requests.
func (c *APIClient) AnonymousSession() (*api.AnonymousSessionResponse, error) {
	resp, err := c.do("POST", "/v1/session/anonymous", nil)
	if err != nil {
		return nil, err
	}
	var session api.AnonymousSessionResponse
	if err := c.decodeOrError(resp, http.StatusCreated, &session); err != nil {
		return nil, err
	}
	c.Token = session.Token
	return &session, nil
}

// EnsureThread returns the caller's single open thread, creating one
// if none exists.
func (c *APIClient) EnsureThread(anonymous bool) (*domain.ThreadView, error) {
	resp, err := c.do("POST", "/v1/threads/ensure", api.EnsureThreadRequest{Anonymous: anonymous})
	if err != nil {
		return nil, err
	}
	var thread api.ThreadResponse
	if err := c.decodeOrError(resp, http.StatusOK, &thread); err != nil {
		return nil, err
	}
	return thread.ThreadView, nil
}

func (c *APIClient) ListThreads(scope domain.ListScope) ([]*domain.ThreadView, error) {
	path := "/v1/threads"
	if scope != "" {
		path = fmt.Sprintf("%s?scope=%s", path, scope)
	}
	resp, err := c.do("GET", path, nil)
	if err != nil {
		return nil, err
	}
	var list api.ThreadListResponse
	if err := c.decodeOrError(resp, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list.Threads, nil
}

func (c *APIClient) GetThread(threadId domain.ThreadId, page int) (*domain.ThreadView, error) {
	path := fmt.Sprintf("/v1/threads/%s", threadId)
	if page > 1 {
		path = fmt.Sprintf("%s?page=%d", path, page)
	}
	resp, err := c.do("GET", path, nil)
	if err != nil {
		return nil, err
	}
	var thread api.ThreadResponse
	if err := c.decodeOrError(resp, http.StatusOK, &thread); err != nil {
		return nil, err
	}
	return thread.ThreadView, nil
}

// SendMessage appends a message. Pass a fresh correlation id per
// logical send and reuse it across retries so the server can
// deduplicate.
func (c *APIClient) SendMessage(threadId domain.ThreadId, text string, clientCorrelationId string) (*domain.Message, error) {
	body := api.SendMessageRequest{Text: text, ClientCorrelationId: clientCorrelationId}
	resp, err := c.do("POST", fmt.Sprintf("/v1/threads/%s/messages", threadId), body)
	if err != nil {
		return nil, err
	}
	var msg api.MessageResponse
	if err := c.decodeOrError(resp, http.StatusCreated, &msg); err != nil {
		return nil, err
	}
	return msg.Message, nil
}

func (c *APIClient) MarkRead(threadId domain.ThreadId) error {
	resp, err := c.do("POST", fmt.Sprintf("/v1/threads/%s/read", threadId), nil)
	if err != nil {
		return err
	}
	return c.decodeOrError(resp, http.StatusOK, nil)
}

func (c *APIClient) CloseThread(threadId domain.ThreadId) error {
	resp, err := c.do("POST", fmt.Sprintf("/v1/threads/%s/close", threadId), nil)
	if err != nil {
		return err
	}
	return c.decodeOrError(resp, http.StatusOK, nil)
}
