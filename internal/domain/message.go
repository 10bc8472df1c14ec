package domain

import (
	"time"
)

type Message struct {
	Id        MsgId
	ThreadId  ThreadId
	Role      Role
	SenderRef ParticipantRef
	Text      MsgText
	CreatedAt time.Time

	// Optional, echoed back for optimistic-send deduplication.
	// Only meaningful within the sender's own session.
	ClientCorrelationId string
}

// to iterate thru layers: handler -> service -> storage
type MessageCreationData struct {
	ThreadId            ThreadId
	Role                Role
	SenderRef           ParticipantRef
	Text                MsgText
	ClientCorrelationId string
}
