package api

import (
	"github.com/mindwell-dev/mindwell/internal/domain"
)

// Request DTOs

type EnsureThreadRequest struct {
	// Anonymous is chosen once, at creation; it cannot be flipped later
	// even by the thread's owner.
	Anonymous bool `json:"anonymous,omitempty"`
}

// Response DTOs

// ThreadResponse wraps a resolved per-viewer thread projection
type ThreadResponse struct {
	*domain.ThreadView
}

type ThreadListResponse struct {
	Threads []*domain.ThreadView `json:"Threads"`
}
