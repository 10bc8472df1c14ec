package api

import (
	"github.com/mindwell-dev/mindwell/internal/domain"
)

// Request DTOs

type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
	// Optional, for optimistic-send deduplication across retries.
	ClientCorrelationId string `json:"client_correlation_id,omitempty"`
}

// Response DTOs

// MessageResponse wraps a persisted message
type MessageResponse struct {
	*domain.Message
}
