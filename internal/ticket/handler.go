package ticket

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/models"
	"github.com/mediasimplified/recorder/pkg/response"
)

// Handler handles the ticket notification endpoint.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a ticket handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Post handles POST /api/ticket/post.
func (h *Handler) Post(c *gin.Context) {
	var body models.TicketUpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid_request")
		return
	}
	err := h.svc.Post(c.Request.Context(), body)
	if err == nil {
		response.OK(c, models.TicketAck{OK: true})
		return
	}

	var step *StepError
	var perr *ProviderError
	switch {
	case errors.Is(err, ErrMissingVideoLink):
		response.BadRequest(c, ErrMissingVideoLink.Error())
	case errors.As(err, &step) && errors.As(err, &perr):
		h.logger.Warn("crm rejected ticket update", zap.String("code", step.Code), zap.Int("status", perr.StatusCode))
		response.ErrorWithDetails(c, perr.StatusCode, step.Code, perr.Body)
	default:
		h.logger.Error("ticket post failed", zap.Error(err))
		response.Internal(c, "ticket_post_failed")
	}
}
