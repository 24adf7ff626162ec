package dispute

import "time"

// Status represents the lifecycle of a dispute record. A raised dispute
// blocks its application from manual and automatic approval until a resolver
// acts or the dispute deadline expires.
type Status string

const (
	StatusRaised          Status = "raised"
	StatusResolvedValid   Status = "resolved_valid"
	StatusResolvedInvalid Status = "resolved_invalid"
	StatusExpired         Status = "expired"
)

// Record mirrors the disputes table.
type Record struct {
	ID            string
	ApplicationID string
	RaisedBy      string
	Reason        string
	Status        Status
	RaisedAt      time.Time
	Deadline      time.Time
	ResolverID    *string
	ResolvedAt    *time.Time
}
