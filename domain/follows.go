package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follow is a directed edge from a requesting actor to a target actor or
// library. Approved is tri-state: nil while the request is pending, then
// true or false once the owner decided. Terminal states never transition.
type Follow struct {
	Id        uuid.UUID
	ActorURI  string
	TargetURI string
	URI       string
	Approved  *bool
	CreatedAt time.Time
}

// Pending reports whether the follow still awaits a decision.
func (f *Follow) Pending() bool {
	return f.Approved == nil
}

// IsApproved reports whether the follow was approved.
func (f *Follow) IsApproved() bool {
	return f.Approved != nil && *f.Approved
}
