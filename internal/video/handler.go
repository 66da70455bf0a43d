package video

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/models"
	"github.com/mediasimplified/recorder/pkg/response"
)

// Registrar allocates and finalizes videos on the host.
type Registrar interface {
	CreateUpload(ctx context.Context, size int64, name string) (*models.UploadSession, error)
	Finalize(ctx context.Context, videoURI, name string) (*models.FinalizedVideo, error)
}

// Handler handles video registration HTTP endpoints.
type Handler struct {
	registrar Registrar
	logger    *zap.Logger
}

// NewHandler creates a video handler.
func NewHandler(registrar Registrar, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registrar: registrar, logger: logger}
}

// Start handles POST /api/video/start.
func (h *Handler) Start(c *gin.Context) {
	var body models.StartUploadRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid_request")
		return
	}
	sess, err := h.registrar.CreateUpload(c.Request.Context(), body.Size, body.Name)
	if err != nil {
		h.fail(c, err, "video_start_failed")
		return
	}
	response.OK(c, sess)
}

// Finalize handles POST /api/video/finalize.
func (h *Handler) Finalize(c *gin.Context) {
	var body models.FinalizeRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid_request")
		return
	}
	if body.VideoURI == "" {
		response.BadRequest(c, ErrMissingVideoURI.Error())
		return
	}
	out, err := h.registrar.Finalize(c.Request.Context(), body.VideoURI, body.Name)
	if err != nil {
		h.fail(c, err, "video_finalize_failed")
		return
	}
	response.OK(c, out)
}

func (h *Handler) fail(c *gin.Context, err error, code string) {
	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		h.logger.Warn("video provider rejected request", zap.Int("status", perr.StatusCode), zap.String("path", c.FullPath()))
		response.Passthrough(c, perr.StatusCode, perr.Body)
	case errors.Is(err, ErrMissingVideoURI), errors.Is(err, ErrInvalidVideoURI):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("video provider call failed", zap.Error(err), zap.String("path", c.FullPath()))
		response.Internal(c, code)
	}
}
