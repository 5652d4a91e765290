package federation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
)

// The closed set of activity types the inbox understands. Anything
// else is acknowledged and dropped.
const (
	TypeFollow = "Follow"
	TypeAccept = "Accept"
	TypeReject = "Reject"
	TypeCreate = "Create"
	TypeUndo   = "Undo"
)

// InboundActivity is the envelope every received activity is parsed
// into before dispatch. Object stays raw: its shape depends on Type.
type InboundActivity struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
	To     []string        `json:"to"`
}

// Handler processes one verified activity of a single type.
type Handler func(activity *InboundActivity) error

// Dispatcher routes verified inbound activities to per-type handlers.
type Dispatcher struct {
	client   *Client
	handlers map[string]Handler
	log      *log.Logger
}

// NewDispatcher builds a dispatcher with the default handler table.
func NewDispatcher(client *Client, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		client:   client,
		handlers: make(map[string]Handler),
		log:      logger,
	}
	d.handlers[TypeFollow] = d.handleFollow
	d.handlers[TypeAccept] = d.handleAccept
	d.handlers[TypeReject] = d.handleReject
	d.handlers[TypeCreate] = d.handleCreate
	d.handlers[TypeUndo] = d.handleUndo
	return d
}

// Receive takes a raw activity body and the actor URI the signature
// verified for. The declared actor must match the verified one; a
// mismatch is an authentication failure regardless of payload. Unknown
// types and handler failures are both absorbed: the former silently,
// the latter logged. Duplicate activity ids are dropped.
func (d *Dispatcher) Receive(body []byte, verifiedActorURI string) error {
	var activity InboundActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		return fmt.Errorf("malformed activity: %w", err)
	}

	if activity.Actor == "" || activity.Actor != verifiedActorURI {
		return authFailure("declared actor %q does not match signer %q", activity.Actor, verifiedActorURI)
	}

	// Activities without an id cannot be deduplicated, so they are
	// dispatched without being recorded.
	var record *domain.Activity
	if activity.ID != "" {
		if err, _ := d.client.DB.ReadActivityByURI(activity.ID); err == nil {
			d.log.Debug("dropping duplicate activity", "id", activity.ID)
			return nil
		}

		record = &domain.Activity{
			Id:           uuid.New(),
			ActivityURI:  activity.ID,
			ActivityType: activity.Type,
			ActorURI:     activity.Actor,
			RawJSON:      string(body),
			CreatedAt:    time.Now().UTC(),
		}
		if err := d.client.DB.CreateActivity(record); err != nil {
			return err
		}
	}

	handler, ok := d.handlers[activity.Type]
	if !ok {
		d.log.Debug("ignoring unhandled activity type", "type", activity.Type, "actor", activity.Actor)
		return nil
	}

	if err := handler(&activity); err != nil {
		d.log.Error("activity handler failed", "type", activity.Type, "id", activity.ID, "err", err)
		return nil
	}

	if record == nil {
		return nil
	}
	return d.client.DB.MarkActivityProcessed(record.Id)
}

// handleFollow records an inbound follow request against a local actor
// or library. When approval is not required the follow is accepted
// immediately.
func (d *Dispatcher) handleFollow(activity *InboundActivity) error {
	var targetURI string
	if err := json.Unmarshal(activity.Object, &targetURI); err != nil {
		return fmt.Errorf("follow object is not a target uri: %w", err)
	}

	if err, existing := d.client.DB.ReadFollowByPair(activity.Actor, targetURI); err == nil {
		d.log.Debug("follow pair already known", "uri", existing.URI)
		return nil
	}

	follow := &domain.Follow{
		Id:        uuid.New(),
		ActorURI:  activity.Actor,
		TargetURI: targetURI,
		URI:       activity.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.client.DB.CreateFollow(follow); err != nil {
		return err
	}

	if !d.client.Conf.Conf.MusicNeedsApproval {
		return d.client.AcceptFollow(follow.Id)
	}

	d.log.Info("follow request awaiting approval", "actor", activity.Actor, "target", targetURI)
	return nil
}

// handleAccept resolves a remote Accept against our outbound follow.
func (d *Dispatcher) handleAccept(activity *InboundActivity) error {
	return d.resolveOutboundFollow(activity, true)
}

// handleReject resolves a remote Reject against our outbound follow.
func (d *Dispatcher) handleReject(activity *InboundActivity) error {
	return d.resolveOutboundFollow(activity, false)
}

func (d *Dispatcher) resolveOutboundFollow(activity *InboundActivity, approved bool) error {
	var nested struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(activity.Object, &nested); err != nil {
		return fmt.Errorf("response object is not a follow: %w", err)
	}
	if nested.Type != TypeFollow || nested.ID == "" {
		return fmt.Errorf("response does not wrap a follow activity")
	}

	err, follow := d.client.DB.ReadFollowByURI(nested.ID)
	if err == sql.ErrNoRows {
		d.log.Warn("response for unknown follow", "uri", nested.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !follow.Pending() {
		d.log.Debug("follow already decided", "uri", follow.URI)
		return nil
	}

	return d.client.DB.WrapTransaction(func(tx *db.Tx) error {
		n, err := db.TransitionFollowTx(tx, follow.Id, approved)
		if err != nil {
			return err
		}
		if n == 0 {
			d.log.Debug("follow decided concurrently", "uri", follow.URI)
		}
		return nil
	})
}

// handleCreate stores newly announced audio from libraries we follow
// with auto-import enabled.
func (d *Dispatcher) handleCreate(activity *InboundActivity) error {
	var item LibraryItem
	if err := json.Unmarshal(activity.Object, &item); err != nil {
		return fmt.Errorf("create object is not a library item: %w", err)
	}
	if item.Library == "" {
		d.log.Debug("create without library reference", "id", activity.ID)
		return nil
	}

	err, libraries := d.client.DB.ReadAllLibraries()
	if err != nil {
		return err
	}
	for i := range *libraries {
		lib := &(*libraries)[i]
		if lib.FollowedURL != item.Library || !lib.AutoImport {
			continue
		}
		track := item.Track(lib.Id)
		track.Imported = true
		if err := d.client.DB.CreateTrack(track); err != nil {
			return err
		}
		d.log.Info("imported announced track", "library", lib.Name, "item", item.ID)
	}
	return nil
}

// handleUndo removes the follow named by the undone activity.
func (d *Dispatcher) handleUndo(activity *InboundActivity) error {
	var nested struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(activity.Object, &nested); err != nil {
		return fmt.Errorf("undo object malformed: %w", err)
	}
	if nested.Type != TypeFollow {
		d.log.Debug("ignoring undo of unhandled type", "type", nested.Type)
		return nil
	}

	err, follow := d.client.DB.ReadFollowByURI(nested.ID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if follow.ActorURI != activity.Actor {
		return authFailure("undo actor %q does not own follow %q", activity.Actor, follow.URI)
	}

	return d.client.DB.DeleteFollowByURI(follow.URI)
}
