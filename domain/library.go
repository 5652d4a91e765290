package domain

import (
	"time"

	"github.com/google/uuid"
)

// Library privacy levels. "everyone" libraries are readable without a
// follow; anything else requires an approved follow (or operator access).
const (
	PrivacyEveryone  = "everyone"
	PrivacyFollowers = "followers"
	PrivacyPrivate   = "private"
)

// Library is a named collection of tracks owned by exactly one actor.
type Library struct {
	Id                uuid.UUID
	ActorURI          string
	Name              string
	Summary           string
	PrivacyLevel      string
	UploadsCount      int
	FederationEnabled bool
	AutoImport        bool
	DownloadFiles     bool
	FollowedURL       string
	CreatedAt         time.Time
}

// Open reports whether the library is readable by anyone.
func (l *Library) Open() bool {
	return l.PrivacyLevel == PrivacyEveryone
}

// Track is a single audio item in a library. Remote tracks are discovered
// through library scans; Imported marks tracks pulled into the local catalog.
type Track struct {
	Id          uuid.UUID
	LibraryId   uuid.UUID
	ItemURI     string
	Title       string
	Artist      string
	Album       string
	AudioURL    string
	MediaType   string
	Size        int64
	Bitrate     int
	Duration    int
	Imported    bool
	PublishedAt time.Time
	CreatedAt   time.Time
}
