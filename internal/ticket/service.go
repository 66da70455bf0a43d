package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mediasimplified/recorder/internal/models"
)

// Error codes reported for failed sub-steps.
const (
	CodeUpdateFieldFailed = "update_field_failed"
	CodePostNoteFailed    = "post_note_failed"
)

// ErrMissingVideoLink is returned when a post carries no video link.
var ErrMissingVideoLink = errors.New("missing_videoLink")

// StepError reports which sub-step failed.
type StepError struct {
	Code string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// CRM is the subset of the CRM API used to notify a ticket.
type CRM interface {
	UpdateContactField(ctx context.Context, locationID, contactID, fieldID, value string) error
	AddNote(ctx context.Context, locationID, conversationID, text string) error
}

// Service writes the video link to the contact and the conversation.
type Service struct {
	crm           CRM
	routing       *Routing
	customFieldID string
	logger        *zap.Logger
}

// NewService creates a ticket notification service. An empty customFieldID disables the contact update.
func NewService(crm CRM, routing *Routing, customFieldID string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{crm: crm, routing: routing, customFieldID: customFieldID, logger: logger}
}

// Post runs the contact field update and the conversation note, skipping whichever has no target.
func (s *Service) Post(ctx context.Context, req models.TicketUpdateRequest) error {
	if req.VideoLink == "" {
		return ErrMissingVideoLink
	}
	location := s.routing.Resolve(req.RefererHost)

	if req.ContactID != "" && s.customFieldID != "" {
		if err := s.crm.UpdateContactField(ctx, location, req.ContactID, s.customFieldID, req.VideoLink); err != nil {
			return &StepError{Code: CodeUpdateFieldFailed, Err: err}
		}
		s.logger.Info("contact field updated", zap.String("contact_id", req.ContactID))
	}

	if req.ConversationID != "" {
		if err := s.crm.AddNote(ctx, location, req.ConversationID, NoteBody(req)); err != nil {
			return &StepError{Code: CodePostNoteFailed, Err: err}
		}
		s.logger.Info("conversation note posted", zap.String("conversation_id", req.ConversationID))
	}
	return nil
}

// NoteBody joins the link and the non-empty ticket and client names with " | ".
func NoteBody(req models.TicketUpdateRequest) string {
	parts := []string{"Screen recording submitted: " + req.VideoLink}
	if req.TicketName != "" {
		parts = append(parts, "Ticket: "+req.TicketName)
	}
	if req.ClientName != "" {
		parts = append(parts, "Client: "+req.ClientName)
	}
	return strings.Join(parts, " | ")
}
