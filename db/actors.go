package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
)

const (
	sqlInsertActor = `INSERT INTO actors(id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, private_key_pem, system, last_fetched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActorColumns = `id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, private_key_pem, system, last_fetched_at, created_at`
	sqlUpdateActor        = `UPDATE actors SET display_name = ?, summary = ?, inbox_uri = ?, outbox_uri = ?, public_key_pem = ?, last_fetched_at = ? WHERE actor_uri = ?`
)

func (db *DB) CreateActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlInsertActor,
			a.Id.String(),
			a.Username,
			a.Domain,
			a.ActorURI,
			a.DisplayName,
			a.Summary,
			a.InboxURI,
			a.OutboxURI,
			a.PublicKeyPem,
			a.PrivateKeyPem,
			a.System,
			a.LastFetchedAt,
			a.CreatedAt,
		)
		return err
	})
}

// UpdateActor refreshes the mutable profile fields of a cached actor.
// The actor URI and the (username, domain) pair never change.
func (db *DB) UpdateActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlUpdateActor,
			a.DisplayName,
			a.Summary,
			a.InboxURI,
			a.OutboxURI,
			a.PublicKeyPem,
			a.LastFetchedAt,
			a.ActorURI,
		)
		return err
	})
}

func (db *DB) ReadActorByURI(uri string) (error, *domain.Actor) {
	row := db.db.QueryRow(`SELECT `+sqlSelectActorColumns+` FROM actors WHERE actor_uri = ?`, uri)
	return scanActor(row)
}

func (db *DB) ReadActorByUsername(username, dom string) (error, *domain.Actor) {
	row := db.db.QueryRow(`SELECT `+sqlSelectActorColumns+` FROM actors WHERE username = ? AND domain = ?`, username, dom)
	return scanActor(row)
}

// ReadLocalActorByUsername resolves a username against the actors this
// server controls (webfinger only ever serves those).
func (db *DB) ReadLocalActorByUsername(username string) (error, *domain.Actor) {
	row := db.db.QueryRow(`SELECT `+sqlSelectActorColumns+` FROM actors WHERE username = ? AND private_key_pem != ''`, username)
	return scanActor(row)
}

func scanActor(row *sql.Row) (error, *domain.Actor) {
	var a domain.Actor
	var idStr string
	err := row.Scan(
		&idStr,
		&a.Username,
		&a.Domain,
		&a.ActorURI,
		&a.DisplayName,
		&a.Summary,
		&a.InboxURI,
		&a.OutboxURI,
		&a.PublicKeyPem,
		&a.PrivateKeyPem,
		&a.System,
		&a.LastFetchedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	a.Id, _ = uuid.Parse(idStr)
	return nil, &a
}
