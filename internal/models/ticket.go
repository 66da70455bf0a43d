package models

// TicketUpdateRequest is the body of POST /api/ticket/post.
// ContactID and ConversationID are each optional; a request with neither is a no-op.
type TicketUpdateRequest struct {
	ContactID      string `json:"contactId"`
	ConversationID string `json:"conversationId"`
	VideoLink      string `json:"videoLink"`
	TicketName     string `json:"ticketName"`
	ClientName     string `json:"clientName"`
	RefererHost    string `json:"refererHost"`
}

// TicketAck is the success body of a ticket post.
type TicketAck struct {
	OK bool `json:"ok"`
}
