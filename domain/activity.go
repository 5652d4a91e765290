package domain

import (
	"time"

	"github.com/google/uuid"
)

// Activity is a received or emitted activity, kept for deduplication
// and debugging.
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Processed    bool
	Local        bool
	CreatedAt    time.Time
}

// DeliveryItem is one pending outbound delivery to a single inbox.
type DeliveryItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
