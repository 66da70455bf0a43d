package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// HTTPDoer describes the HTTP client used to reach the CRM.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds CRM credentials.
type ClientConfig struct {
	APIURL     string
	APIKey     string
	APIVersion string
}

// ProviderError is a non-success response from the CRM.
type ProviderError struct {
	StatusCode int
	Body       []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("crm returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Client calls the LeadConnector contact and conversation endpoints.
type Client struct {
	cfg    ClientConfig
	http   HTTPDoer
	logger *zap.Logger
}

// NewClient creates a CRM client. A nil doer uses http.DefaultClient.
func NewClient(cfg ClientConfig, doer HTTPDoer, logger *zap.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	return &Client{cfg: cfg, http: doer, logger: logger}
}

type customField struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// UpdateContactField sets one custom field on a contact.
func (c *Client) UpdateContactField(ctx context.Context, locationID, contactID, fieldID, value string) error {
	body := map[string][]customField{"customFields": {{ID: fieldID, Value: value}}}
	return c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(contactID), locationID, body)
}

// AddNote appends an internal note to a conversation.
func (c *Client) AddNote(ctx context.Context, locationID, conversationID, text string) error {
	body := map[string]string{"type": "NOTE", "body": text}
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", locationID, body)
}

func (c *Client) do(ctx context.Context, method, path, locationID string, in interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Version", c.cfg.APIVersion)
	req.Header.Set("Content-Type", "application/json")
	if locationID != "" {
		req.Header.Set("LocationId", locationID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &ProviderError{StatusCode: resp.StatusCode, Body: raw}
	}
	c.logger.Debug("crm call ok", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	return nil
}
