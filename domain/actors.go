package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Actor represents a federated identity, local or remote. Exactly one
// actor exists per (username, domain) pair. The private key is only set
// for locally controlled actors.
type Actor struct {
	Id            uuid.UUID
	Username      string
	Domain        string
	ActorURI      string
	DisplayName   string
	Summary       string
	InboxURI      string
	OutboxURI     string
	PublicKeyPem  string
	PrivateKeyPem string
	System        bool
	LastFetchedAt time.Time
	CreatedAt     time.Time
}

// Local reports whether this server controls the actor's keypair.
func (a *Actor) Local() bool {
	return a.PrivateKeyPem != ""
}

// Handle returns the account handle, e.g. "library@music.example".
func (a *Actor) Handle() string {
	return fmt.Sprintf("%s@%s", a.Username, a.Domain)
}

// KeyId returns the key identifier under which the actor's public key
// is published. The public key may rotate; the id stays stable.
func (a *Actor) KeyId() string {
	return a.ActorURI + "#main-key"
}
