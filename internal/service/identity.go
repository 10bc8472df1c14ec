package service

import (
	"fmt"

	"github.com/mindwell-dev/mindwell/internal/domain"
	"github.com/mindwell-dev/mindwell/internal/logger"
)

// Directory is the external identity collaborator: it maps a verified
// student reference to directory data. The core never stores names or
// student numbers.
type Directory interface {
	Lookup(ref domain.ParticipantRef) (*domain.StudentIdentity, error)
}

// StaticDirectory is a map-backed Directory for wiring and tests.
type StaticDirectory struct {
	Students map[domain.ParticipantRef]domain.StudentIdentity
}

func (d *StaticDirectory) Lookup(ref domain.ParticipantRef) (*domain.StudentIdentity, error) {
	if identity, ok := d.Students[ref]; ok {
		return &identity, nil
	}
	return nil, nil
}

// IdentityResolver computes, per viewer, what student identity is
// visible for a thread. The projection is recomputed on every request
// and never cached: ownership can change between two fetches, and a
// claim-state change must never let a client keep identity it saw
// under an earlier tier.
type IdentityResolver struct {
	directory Directory
}

func NewIdentityResolver(directory Directory) *IdentityResolver {
	return &IdentityResolver{directory: directory}
}

// fullIdentityVisible: only the owning counselor of a non-anonymous
// thread sees who the student is. The student's own view keeps their
// data trivially.
func fullIdentityVisible(metadata *domain.ThreadMetadata, caller *domain.Caller) bool {
	if caller.IsStudent() {
		return metadata.StudentRef == caller.Ref
	}
	return metadata.OwnedBy(caller.Ref) && !metadata.Anonymous
}

// SyntheticLabel derives the hidden-identity display label from a
// stable suffix of the thread id. The suffix is not reversible to the
// student reference.
func SyntheticLabel(metadata *domain.ThreadMetadata) string {
	suffix := string(metadata.Id)
	if len(suffix) > 5 {
		suffix = suffix[len(suffix)-5:]
	}
	switch {
	case metadata.Anonymous:
		return fmt.Sprintf("Anonymous Student (T-%s)", suffix)
	case !metadata.Claimed():
		return fmt.Sprintf("New Student (T-%s)", suffix)
	default:
		return fmt.Sprintf("Student (T-%s)", suffix)
	}
}

// View projects thread metadata and messages for one caller.
func (r *IdentityResolver) View(metadata domain.ThreadMetadata, messages []*domain.Message, caller *domain.Caller) (*domain.ThreadView, error) {
	view := &domain.ThreadView{ThreadMetadata: metadata, Claimed: metadata.Claimed()}

	// Viewer-specific unread counter only; the raw map is keyed by
	// participant references and would leak the student context key.
	view.UnreadCounts = map[domain.ParticipantRef]int{caller.Ref: metadata.UnreadCounts[caller.Ref]}

	// Students know a thread is claimed, never by whom; the counselor
	// side of the metadata is role label only.
	if caller.IsStudent() {
		view.OwnerCounselor = nil
	}

	if fullIdentityVisible(&metadata, caller) {
		if caller.IsCounselor() {
			identity, err := r.directory.Lookup(metadata.StudentRef)
			if err != nil {
				// Directory trouble degrades to the hidden tier rather
				// than failing the fetch.
				logger.Log.Error("directory lookup failed", "err", err)
			} else if identity != nil {
				view.Student = identity
			}
		}
	} else {
		view.StudentRef = ""
		view.StudentLabel = SyntheticLabel(&metadata)
	}

	view.Messages = redactMessages(messages, &metadata, caller)
	return view, nil
}

// redactMessages strips sender references the viewer may not see.
// Students see counselors only as the role label; counselors outside
// the full-identity tier see students the same way.
func redactMessages(messages []*domain.Message, metadata *domain.ThreadMetadata, caller *domain.Caller) []*domain.Message {
	full := fullIdentityVisible(metadata, caller)
	redacted := make([]*domain.Message, 0, len(messages))
	for _, msg := range messages {
		copied := *msg
		switch {
		case caller.IsStudent() && msg.Role == domain.RoleCounselor:
			copied.SenderRef = ""
		case caller.IsCounselor() && msg.Role == domain.RoleStudent && !full:
			copied.SenderRef = ""
		}
		// Correlation ids are only meaningful to their sender.
		if copied.SenderRef != caller.Ref {
			copied.ClientCorrelationId = ""
		}
		redacted = append(redacted, &copied)
	}
	return redacted
}
