package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
)

const (
	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityColumns = `id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at`
)

func (db *DB) CreateActivity(a *domain.Activity) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			a.Id.String(),
			a.ActivityURI,
			a.ActivityType,
			a.ActorURI,
			a.ObjectURI,
			a.RawJSON,
			a.Processed,
			a.Local,
			a.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	row := db.db.QueryRow(`SELECT `+sqlSelectActivityColumns+` FROM activities WHERE activity_uri = ?`, uri)
	var a domain.Activity
	var idStr string
	err := row.Scan(&idStr, &a.ActivityURI, &a.ActivityType, &a.ActorURI, &a.ObjectURI, &a.RawJSON, &a.Processed, &a.Local, &a.CreatedAt)
	if err != nil {
		return err, nil
	}
	a.Id, _ = uuid.Parse(idStr)
	return nil, &a
}

func (db *DB) MarkActivityProcessed(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(`UPDATE activities SET processed = 1 WHERE id = ?`, id.String())
		return err
	})
}

// Delivery queue

const (
	sqlInsertDelivery = `INSERT INTO delivery_queue(id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryItem) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlInsertDelivery,
			item.Id.String(),
			item.InboxURI,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt,
			item.CreatedAt,
		)
		return err
	})
}

// EnqueueDeliveryTx queues a delivery inside an enclosing transaction so
// the queued activity becomes visible exactly when the state change that
// produced it commits.
func EnqueueDeliveryTx(tx *Tx, item *domain.DeliveryItem) error {
	_, err := tx.Exec(sqlInsertDelivery,
		item.Id.String(),
		item.InboxURI,
		item.ActivityJSON,
		item.Attempts,
		item.NextRetryAt,
		item.CreatedAt,
	)
	return err
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryItem) {
	rows, err := db.db.Query(`SELECT id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY next_retry_at LIMIT ?`, time.Now().UTC(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryItem
	for rows.Next() {
		var item domain.DeliveryItem
		var idStr string
		if err := rows.Scan(&idStr, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return err, &items
		}
		item.Id, _ = uuid.Parse(idStr)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}

	return nil, &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(`UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`, attempts, nextRetryAt, id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(`DELETE FROM delivery_queue WHERE id = ?`, id.String())
		return err
	})
}
