package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediasimplified/recorder/internal/models"
)

// API paths served by cmd/server.
const (
	PathVideoStart    = "/api/video/start"
	PathVideoFinalize = "/api/video/finalize"
	PathTicketPost    = "/api/ticket/post"
)

// APIError is a non-success response from the recorder server.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// APIClient calls the recorder server's video and ticket endpoints.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient creates a client for the server at baseURL. A nil client gets a 60s timeout.
func NewAPIClient(baseURL string, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// StartUpload requests a resumable upload session.
func (c *APIClient) StartUpload(ctx context.Context, req models.StartUploadRequest) (*models.UploadSession, error) {
	var out models.UploadSession
	if err := c.post(ctx, PathVideoStart, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizeVideo renames the uploaded video and returns its links.
func (c *APIClient) FinalizeVideo(ctx context.Context, req models.FinalizeRequest) (*models.FinalizedVideo, error) {
	var out models.FinalizedVideo
	if err := c.post(ctx, PathVideoFinalize, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostTicket attaches the video link to the ticket.
func (c *APIClient) PostTicket(ctx context.Context, req models.TicketUpdateRequest) error {
	var ack models.TicketAck
	if err := c.post(ctx, PathTicketPost, req, &ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("ticket post not acknowledged")
	}
	return nil
}

func (c *APIClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: raw}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
