package federation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
)

// FollowActivity is the wire form of a Follow and of the Accept/Reject
// responses wrapping one.
type FollowActivity struct {
	Context interface{}     `json:"@context,omitempty"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object"`
}

// RequestFollow records a local follow request toward a remote target
// and queues the Follow activity for delivery. Requesting an already
// pending or approved pair is a no-op returning the existing follow.
func (c *Client) RequestFollow(follower *domain.Actor, target *domain.Actor, targetURI string) (*domain.Follow, error) {
	if err, existing := c.DB.ReadFollowByPair(follower.ActorURI, targetURI); err == nil {
		if existing.Pending() || existing.IsApproved() {
			return existing, nil
		}
		// rejected: allow a fresh request
		if err := c.DB.DeleteFollowByURI(existing.URI); err != nil {
			return nil, err
		}
	}

	follow := &domain.Follow{
		Id:        uuid.New(),
		ActorURI:  follower.ActorURI,
		TargetURI: targetURI,
		CreatedAt: time.Now().UTC(),
	}
	follow.URI = fmt.Sprintf("%s#follows/%s", follower.ActorURI, follow.Id)

	object, _ := json.Marshal(targetURI)
	activity := FollowActivity{
		Context: activityStreamsContext,
		ID:      follow.URI,
		Type:    "Follow",
		Actor:   follower.ActorURI,
		Object:  object,
	}
	payload, err := json.Marshal(activity)
	if err != nil {
		return nil, err
	}

	err = c.DB.WrapTransaction(func(tx *db.Tx) error {
		if err := db.CreateFollowTx(tx, follow); err != nil {
			return err
		}
		return c.DeliverOnCommit(tx, payload, []string{target.InboxURI})
	})
	if err != nil {
		return nil, err
	}

	return follow, nil
}

// AcceptFollow transitions a pending follow to approved and queues an
// Accept back to the requester. Transitions from any non-pending state
// fail with ErrInvalidState; the approved row is only visible to access
// checks after the queueing transaction commits.
func (c *Client) AcceptFollow(followId uuid.UUID) error {
	return c.decideFollow(followId, true)
}

// RejectFollow transitions a pending follow to rejected and queues a
// Reject back to the requester.
func (c *Client) RejectFollow(followId uuid.UUID) error {
	return c.decideFollow(followId, false)
}

func (c *Client) decideFollow(followId uuid.UUID, approved bool) error {
	err, follow := c.DB.ReadFollowById(followId)
	if err != nil {
		return err
	}
	if !follow.Pending() {
		return fmt.Errorf("%w: follow %s already decided", ErrInvalidState, follow.Id)
	}

	err, requester := c.DB.ReadActorByURI(follow.ActorURI)
	if err != nil {
		return fmt.Errorf("follow requester %s unknown: %w", follow.ActorURI, err)
	}

	// The response is signed with the system library actor's key, so it
	// must also be the declared actor or the requester's inbox rejects
	// the activity as a signer mismatch.
	system, err := c.SystemActor("library")
	if err != nil {
		return err
	}

	responseType := "Accept"
	if !approved {
		responseType = "Reject"
	}

	object, err := json.Marshal(FollowActivity{
		ID:     follow.URI,
		Type:   "Follow",
		Actor:  follow.ActorURI,
		Object: mustJSONString(follow.TargetURI),
	})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(FollowActivity{
		Context: activityStreamsContext,
		ID:      fmt.Sprintf("%s/%s/%s", follow.TargetURI, strings.ToLower(responseType), follow.Id),
		Type:    responseType,
		Actor:   system.ActorURI,
		Object:  object,
	})
	if err != nil {
		return err
	}

	return c.DB.WrapTransaction(func(tx *db.Tx) error {
		n, err := db.TransitionFollowTx(tx, follow.Id, approved)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: follow %s already decided", ErrInvalidState, follow.Id)
		}
		return c.DeliverOnCommit(tx, payload, []string{requester.InboxURI})
	})
}

// HasAccess decides whether actorURI may read the given library's pages.
// Open libraries are readable by anyone, including anonymous callers.
// Everything else requires the owner, an operator override, or an
// approved follow on the library or its owner. Unknown actors never
// get access to restricted libraries.
func (c *Client) HasAccess(library *domain.Library, actorURI string, operator bool) bool {
	if library.Open() {
		return true
	}
	if operator {
		return true
	}
	if actorURI == "" {
		return false
	}
	if actorURI == library.ActorURI {
		return true
	}

	libraryURI := c.LibraryURI(library)
	err, approved := c.DB.ReadApprovedFollow(actorURI, libraryURI, library.ActorURI)
	if err != nil {
		return false
	}
	return approved
}

// LibraryURI is the canonical federation id of a local library.
func (c *Client) LibraryURI(library *domain.Library) string {
	return fmt.Sprintf("%s://%s/federation/libraries/%s", c.scheme, c.Conf.Conf.Domain, library.Id)
}

func mustJSONString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
