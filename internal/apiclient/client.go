// Package apiclient is the requester side of the job API: submit calls and a
// cancellable status poll loop.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clipcast/api/internal/model"
)

// Session identifies the requester and is passed to every submit call
type Session struct {
	UserID string
}

// ClipRequest is a clip window in seconds
type ClipRequest struct {
	SourceURL string
	Start     float64
	End       float64
}

// APIError is a non-2xx answer from the job API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Body)
}

// Client talks to the job API over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// SubmitClip queues a clip job and returns its id
func (c *Client) SubmitClip(ctx context.Context, s Session, req ClipRequest) (string, error) {
	if s.UserID == "" {
		return "", errors.New("session has no user id")
	}
	body := model.ClipJobRequest{
		SourceURL: req.SourceURL,
		StartTime: &req.Start,
		EndTime:   &req.End,
		UserID:    s.UserID,
	}
	var result model.JobAcceptedResponse
	if err := c.post(ctx, "/clip-jobs", body, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// SubmitPlaylist queues a playlist job and returns its id
func (c *Client) SubmitPlaylist(ctx context.Context, s Session, playlistURL string) (string, error) {
	if s.UserID == "" {
		return "", errors.New("session has no user id")
	}
	body := model.PlaylistJobRequest{PlaylistURL: playlistURL, UserID: s.UserID}
	var result model.JobAcceptedResponse
	if err := c.post(ctx, "/playlist-jobs", body, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// Status reads a job's status. An unknown job is reported with status
// not_found and a nil error.
func (c *Client) Status(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	endpoint := fmt.Sprintf("/jobs/%s/status", url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result model.StatusResponse
	err = c.doRequest(req, &result)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &model.StatusResponse{JobID: jobID, Status: model.JobStatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, result)
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
