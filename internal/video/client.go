package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/models"
)

const (
	defaultUploadName   = "Support Recording"
	defaultFinalizeName = "Help Chat Recording"

	playerURLTemplate = "https://player.vimeo.com/video/%s"
	pageURLTemplate   = "https://vimeo.com/%s"
)

// ErrMissingVideoURI is returned by Finalize when no video URI was supplied.
var ErrMissingVideoURI = errors.New("missing_videoUri")

// ErrInvalidVideoURI is returned by Finalize when the URI is not a bare /videos/<id> path.
var ErrInvalidVideoURI = errors.New("invalid_videoUri")

var (
	videoIDPattern  = regexp.MustCompile(`/videos/(\d+)`)
	videoURIPattern = regexp.MustCompile(`^/videos/\d+$`)
)

// ProviderError is a non-success response from the video host.
type ProviderError struct {
	StatusCode int
	Body       []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("video provider returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// HTTPDoer describes the HTTP client used to reach the video host.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds credentials and placement for uploads.
type Config struct {
	APIURL   string
	Token    string
	UserID   string
	FolderID string
}

// Client wraps the Vimeo API calls used to register recordings.
type Client struct {
	cfg    Config
	http   HTTPDoer
	logger *zap.Logger
}

// NewClient creates a video host client. A nil doer uses http.DefaultClient.
func NewClient(cfg Config, doer HTTPDoer, logger *zap.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	return &Client{cfg: cfg, http: doer, logger: logger}
}

type createUploadBody struct {
	Upload struct {
		Approach string `json:"approach"`
		Size     string `json:"size"`
	} `json:"upload"`
	Name    string `json:"name"`
	Privacy struct {
		View string `json:"view"`
	} `json:"privacy"`
	FolderURI string `json:"folder_uri"`
}

type videoResource struct {
	URI    string `json:"uri"`
	Link   string `json:"link"`
	Upload struct {
		UploadLink string `json:"upload_link"`
	} `json:"upload"`
}

// CreateUpload allocates an unlisted tus upload session of size bytes inside the configured folder.
// Each call creates a distinct video; callers must not retry it blindly.
func (c *Client) CreateUpload(ctx context.Context, size int64, name string) (*models.UploadSession, error) {
	var body createUploadBody
	body.Upload.Approach = "tus"
	if size > 0 {
		body.Upload.Size = strconv.FormatInt(size, 10)
	}
	body.Name = name
	if body.Name == "" {
		body.Name = defaultUploadName
	}
	body.Privacy.View = "unlisted"
	body.FolderURI = fmt.Sprintf("/users/%s/projects/%s", c.cfg.UserID, c.cfg.FolderID)

	var res videoResource
	if err := c.do(ctx, http.MethodPost, "/me/videos", body, &res); err != nil {
		return nil, err
	}
	c.logger.Info("video upload session created", zap.String("video_uri", res.URI), zap.Int64("size", size))
	return &models.UploadSession{
		UploadLink:   res.Upload.UploadLink,
		VideoURI:     res.URI,
		ProviderPage: res.Link,
	}, nil
}

// Finalize renames the video and derives its public links. Renaming is idempotent.
func (c *Client) Finalize(ctx context.Context, videoURI, name string) (*models.FinalizedVideo, error) {
	if videoURI == "" {
		return nil, ErrMissingVideoURI
	}
	// The URI is appended to the API base, so anything else could redirect the token.
	if !videoURIPattern.MatchString(videoURI) {
		return nil, ErrInvalidVideoURI
	}
	if name == "" {
		name = defaultFinalizeName
	}
	var res videoResource
	if err := c.do(ctx, http.MethodPatch, videoURI, map[string]string{"name": name}, &res); err != nil {
		return nil, err
	}
	out := DeriveLinks(videoURI, res.Link)
	c.logger.Info("video finalized", zap.String("video_uri", videoURI), zap.String("player_link", out.PlayerLink))
	return out, nil
}

// ExtractVideoID returns the numeric id embedded in a /videos/<id> URI, or "".
func ExtractVideoID(uri string) string {
	m := videoIDPattern.FindStringSubmatch(uri)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// DeriveLinks builds the player link from the URI's id and prefers the provider's canonical
// page link, constructing one from the id when the provider omits it.
func DeriveLinks(videoURI, providerLink string) *models.FinalizedVideo {
	out := &models.FinalizedVideo{PageLink: providerLink}
	id := ExtractVideoID(videoURI)
	if id == "" {
		return out
	}
	out.PlayerLink = fmt.Sprintf(playerURLTemplate, id)
	if out.PageLink == "" {
		// URL shape is not part of the provider contract.
		out.PageLink = fmt.Sprintf(pageURLTemplate, id)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.vimeo.*+json;version=3.4")

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
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
