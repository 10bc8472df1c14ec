package domain

import (
	"time"
)

// to iterate thru layers: handler -> service -> storage
type ThreadCreationData struct {
	StudentRef ParticipantRef
	Anonymous  bool
}

type ThreadMetadata struct {
	Id              ThreadId
	StudentRef      ParticipantRef
	Anonymous       bool
	OwnerCounselor  *ParticipantRef // nil until a counselor claims the thread
	Status          ThreadStatus
	LastMessageText string
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Cached per-participant unread counters. Derivable from the
	// message log plus the ack log; never negative.
	UnreadCounts map[ParticipantRef]int
}

func (m *ThreadMetadata) Claimed() bool {
	return m.OwnerCounselor != nil
}

func (m *ThreadMetadata) OwnedBy(ref ParticipantRef) bool {
	return m.OwnerCounselor != nil && *m.OwnerCounselor == ref
}

// ThreadView is what a given caller is allowed to see of a thread.
// StudentLabel replaces any real identity for viewers outside the
// disclosure rules; Student is only populated for the owning counselor
// of a non-anonymous thread.
type ThreadView struct {
	ThreadMetadata
	// Claimed survives the redaction of OwnerCounselor: a student may
	// know the thread has an owner, never which counselor it is.
	Claimed      bool
	StudentLabel string
	Student      *StudentIdentity
	Messages     []*Message
}

// StudentIdentity is resolved through the external directory
// collaborator; the core stores only the opaque StudentRef.
type StudentIdentity struct {
	Ref           ParticipantRef
	DisplayName   string
	StudentNumber string
}
