package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
)

const (
	sqlInsertFollow        = `INSERT INTO follows(id, actor_uri, target_uri, uri, approved, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowColumns = `id, actor_uri, target_uri, uri, approved, created_at`
)

func (db *DB) CreateFollow(f *domain.Follow) error {
	return db.wrapTransaction(func(tx *Tx) error {
		return CreateFollowTx(tx, f)
	})
}

// CreateFollowTx inserts a follow inside an enclosing transaction.
func CreateFollowTx(tx *Tx, f *domain.Follow) error {
	_, err := tx.Exec(sqlInsertFollow,
		f.Id.String(),
		f.ActorURI,
		f.TargetURI,
		f.URI,
		f.Approved,
		f.CreatedAt,
	)
	return err
}

func (db *DB) ReadFollowById(id uuid.UUID) (error, *domain.Follow) {
	row := db.db.QueryRow(`SELECT `+sqlSelectFollowColumns+` FROM follows WHERE id = ?`, id.String())
	return scanFollow(row)
}

func (db *DB) ReadFollowByURI(uri string) (error, *domain.Follow) {
	row := db.db.QueryRow(`SELECT `+sqlSelectFollowColumns+` FROM follows WHERE uri = ?`, uri)
	return scanFollow(row)
}

// ReadFollowByPair looks up the single follow edge between two actors.
// At most one exists per (actor, target) pair.
func (db *DB) ReadFollowByPair(actorURI, targetURI string) (error, *domain.Follow) {
	row := db.db.QueryRow(`SELECT `+sqlSelectFollowColumns+` FROM follows WHERE actor_uri = ? AND target_uri = ?`, actorURI, targetURI)
	return scanFollow(row)
}

// ReadApprovedFollow reports whether actorURI holds an approved follow
// against any of the target URIs (a library and its owning actor).
func (db *DB) ReadApprovedFollow(actorURI string, targetURIs ...string) (error, bool) {
	for _, target := range targetURIs {
		err, follow := db.ReadFollowByPair(actorURI, target)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err, false
		}
		if follow.IsApproved() {
			return nil, true
		}
	}
	return nil, false
}

func (db *DB) ReadFollowsByTargetURI(targetURI string) (error, *[]domain.Follow) {
	rows, err := db.db.Query(`SELECT `+sqlSelectFollowColumns+` FROM follows WHERE target_uri = ? ORDER BY created_at DESC`, targetURI)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var f domain.Follow
		var idStr string
		if err := rows.Scan(&idStr, &f.ActorURI, &f.TargetURI, &f.URI, &f.Approved, &f.CreatedAt); err != nil {
			return err, &follows
		}
		f.Id, _ = uuid.Parse(idStr)
		follows = append(follows, f)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}

	return nil, &follows
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(`DELETE FROM follows WHERE uri = ?`, uri)
		return err
	})
}

// TransitionFollowTx flips a pending follow to its terminal state inside
// an enclosing transaction. The guard (approved IS NULL) makes the
// read-modify-write atomic per row: the second of two racing transitions
// sees zero affected rows.
func TransitionFollowTx(tx *Tx, id uuid.UUID, approved bool) (int64, error) {
	res, err := tx.Exec(`UPDATE follows SET approved = ? WHERE id = ? AND approved IS NULL`, approved, id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanFollow(row *sql.Row) (error, *domain.Follow) {
	var f domain.Follow
	var idStr string
	err := row.Scan(
		&idStr,
		&f.ActorURI,
		&f.TargetURI,
		&f.URI,
		&f.Approved,
		&f.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	f.Id, _ = uuid.Parse(idStr)
	return nil, &f
}
