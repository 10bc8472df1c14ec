package domain

// Caller is the verified identity attached to every request by the
// auth middleware. The core trusts it; credential verification is the
// auth collaborator's job.
type Caller struct {
	Role Role
	Ref  ParticipantRef

	// True for student callers operating under a server-issued
	// anonymous session token rather than a verified user id.
	Anonymous bool
}

func (c *Caller) IsStudent() bool   { return c.Role == RoleStudent }
func (c *Caller) IsCounselor() bool { return c.Role == RoleCounselor }
