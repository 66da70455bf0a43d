package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	tus "github.com/eventials/go-tus"
	"go.uber.org/zap"
)

// ChunkSize is the fixed tus PATCH size.
const ChunkSize int64 = 5 * 1024 * 1024

const tusResumable = "1.0.0"

// DefaultRequestTimeout bounds one tus request when no client is supplied.
const DefaultRequestTimeout = 2 * time.Minute

// DefaultRetryDelays is the wait before each retry of a failed chunk.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 3 * time.Second, 5 * time.Second}

// TusOption configures a TusTransport.
type TusOption func(*TusTransport)

// WithChunkSize overrides the chunk size.
func WithChunkSize(n int64) TusOption {
	return func(t *TusTransport) { t.chunkSize = n }
}

// WithRetryDelays overrides the retry schedule.
func WithRetryDelays(delays ...time.Duration) TusOption {
	return func(t *TusTransport) { t.retryDelays = delays }
}

// TusTransport uploads a blob to a provider-issued tus upload link.
type TusTransport struct {
	http        *http.Client
	chunkSize   int64
	retryDelays []time.Duration
	logger      *zap.Logger
}

// NewTusTransport creates a transport. A nil client uses one bounded by DefaultRequestTimeout.
func NewTusTransport(client *http.Client, logger *zap.Logger, opts ...TusOption) *TusTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TusTransport{http: client, chunkSize: ChunkSize, retryDelays: DefaultRetryDelays, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Upload sends data in chunks starting at offset 0. A failed chunk is retried on the delay
// schedule after re-reading the server offset; the schedule restarts after any progress.
func (t *TusTransport) Upload(ctx context.Context, uploadLink string, data []byte, progress func(sent, total int64)) error {
	// go-tus builds its requests without a context; tie them to ctx here.
	bound := *t.http
	base := bound.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	bound.Transport = contextTransport{ctx: ctx, base: base}

	client, err := tus.NewClient(uploadLink, &tus.Config{
		ChunkSize:  t.chunkSize,
		Header:     make(http.Header),
		HttpClient: &bound,
	})
	if err != nil {
		return fmt.Errorf("tus client: %w", err)
	}
	upload := tus.NewUploadFromBytes(data)
	total := upload.Size()
	// Each uploader parks a progress goroutine that go-tus never stops, so a new one is
	// only made when the server offset disagrees with ours.
	uploader := tus.NewUploader(client, uploadLink, upload, 0)

	attempt := 0
	for uploader.Offset() < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := uploader.UploadChunck()
		if err == nil {
			attempt = 0
			if progress != nil {
				progress(uploader.Offset(), total)
			}
			continue
		}
		if attempt >= len(t.retryDelays) {
			return fmt.Errorf("upload chunk at offset %d: %w", uploader.Offset(), err)
		}
		delay := t.retryDelays[attempt]
		attempt++
		t.logger.Warn("tus chunk failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Int64("offset", uploader.Offset()))
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("upload chunk at offset %d: %w", uploader.Offset(), serr)
		}
		if offset, herr := t.remoteOffset(ctx, uploadLink); herr == nil && offset != uploader.Offset() {
			uploader = tus.NewUploader(client, uploadLink, upload, offset)
		}
	}
	return nil
}

// contextTransport cancels a request when either its own context or ctx is done.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

// remoteOffset asks the server how many bytes it already holds.
func (t *TusTransport) remoteOffset(ctx context.Context, uploadLink string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uploadLink, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Tus-Resumable", tusResumable)
	resp, err := t.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("head upload: status %d", resp.StatusCode)
	}
	return strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
