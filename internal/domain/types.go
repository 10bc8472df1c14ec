package domain

type (
	ThreadId = string // uuid, assigned by the store

	// Participant reference as stored in unread counters and ack logs:
	// a student user id, an anonymous session key, or a counselor id.
	ParticipantRef = string

	MsgText = string
	MsgId   = int64
)

// Role of the actor behind a request or a message.
type Role string

const (
	RoleStudent   Role = "student"
	RoleCounselor Role = "counselor"
)

// Thread lifecycle states.
type ThreadStatus string

const (
	StatusOpen   ThreadStatus = "open"
	StatusClosed ThreadStatus = "closed"
)

// Listing scope for counselors vs students.
type ListScope string

const (
	ScopeOwn    ListScope = "own"
	ScopeSystem ListScope = "system"
)
