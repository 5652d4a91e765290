package federation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/util"
)

// DeliveryResult is the outcome of one recipient's delivery attempt.
type DeliveryResult struct {
	InboxURI string
	Err      error
}

// Deliver fans an activity out to every recipient inbox concurrently,
// signed with the sender's key. Each recipient succeeds or fails
// independently; one slow or broken inbox never blocks the others.
func (c *Client) Deliver(sender *domain.Actor, payload []byte, inboxURIs []string) []DeliveryResult {
	results := make([]DeliveryResult, len(inboxURIs))

	var wg sync.WaitGroup
	for i, inbox := range inboxURIs {
		wg.Add(1)
		go func(i int, inbox string) {
			defer wg.Done()
			results[i] = DeliveryResult{
				InboxURI: inbox,
				Err:      c.deliverOne(sender, payload, inbox),
			}
		}(i, inbox)
	}
	wg.Wait()

	return results
}

// DeliverOnCommit queues deliveries to all recipients inside tx and
// registers an immediate delivery attempt for after the commit. The
// queue rows are the retry fallback: a first attempt that succeeds
// removes its row, a failed one leaves it for the worker.
func (c *Client) DeliverOnCommit(tx *db.Tx, payload []byte, inboxURIs []string) error {
	now := time.Now().UTC()
	items := make([]*domain.DeliveryItem, 0, len(inboxURIs))
	for _, inbox := range inboxURIs {
		item := &domain.DeliveryItem{
			Id:           uuid.New(),
			InboxURI:     inbox,
			ActivityJSON: string(payload),
			NextRetryAt:  now,
			CreatedAt:    now,
		}
		if err := db.EnqueueDeliveryTx(tx, item); err != nil {
			return err
		}
		items = append(items, item)
	}
	tx.OnCommit(func() { go c.deliverQueued(items) })
	return nil
}

// deliverQueued fans the freshly committed items out once and removes
// the rows whose delivery succeeded.
func (c *Client) deliverQueued(items []*domain.DeliveryItem) {
	if len(items) == 0 {
		return
	}
	sender, err := c.SystemActor("library")
	if err != nil {
		log.Warnf("Immediate delivery skipped: %v", err)
		return
	}

	inboxes := make([]string, len(items))
	for i := range items {
		inboxes[i] = items[i].InboxURI
	}

	results := c.Deliver(sender, []byte(items[0].ActivityJSON), inboxes)
	for i, result := range results {
		if result.Err != nil {
			log.Debugf("Immediate delivery to %s failed, queue will retry: %v", result.InboxURI, result.Err)
			continue
		}
		if err := c.DB.DeleteDelivery(items[i].Id); err != nil {
			log.Warnf("Removing delivered item %s: %v", items[i].Id, err)
		}
	}
}

func (c *Client) deliverOne(sender *domain.Actor, payload []byte, inboxURI string) error {
	priv, err := util.ParsePrivateKey(sender.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("sender key unusable: %w", err)
	}

	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	if err := SignRequest(req, priv, sender.KeyId(), payload); err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("inbox %s returned %d", inboxURI, resp.StatusCode)
	}
	return nil
}

const (
	deliveryPollInterval = 10 * time.Second
	deliveryBatchSize    = 20
	deliveryMaxAttempts  = 8
)

// DeliveryWorker drains the delivery queue in the background, retrying
// failures with exponential backoff until they succeed or exhaust
// their attempts.
type DeliveryWorker struct {
	client *Client
	sender *domain.Actor
	log    *log.Logger
}

func NewDeliveryWorker(client *Client, sender *domain.Actor, logger *log.Logger) *DeliveryWorker {
	return &DeliveryWorker{client: client, sender: sender, log: logger}
}

// Run polls the queue until ctx is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(deliveryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce()
		}
	}
}

func (w *DeliveryWorker) drainOnce() {
	err, items := w.client.DB.ReadPendingDeliveries(deliveryBatchSize)
	if err != nil {
		w.log.Error("reading delivery queue", "err", err)
		return
	}

	for i := range *items {
		item := &(*items)[i]
		if err := w.client.deliverOne(w.sender, []byte(item.ActivityJSON), item.InboxURI); err != nil {
			w.retryLater(item, err)
			continue
		}
		if err := w.client.DB.DeleteDelivery(item.Id); err != nil {
			w.log.Error("removing delivered item", "id", item.Id, "err", err)
		}
	}
}

func (w *DeliveryWorker) retryLater(item *domain.DeliveryItem, cause error) {
	attempts := item.Attempts + 1
	if attempts >= deliveryMaxAttempts {
		w.log.Warn("giving up on delivery", "inbox", item.InboxURI, "attempts", attempts, "err", cause)
		if err := w.client.DB.DeleteDelivery(item.Id); err != nil {
			w.log.Error("removing dead delivery", "id", item.Id, "err", err)
		}
		return
	}

	// 1m, 2m, 4m, ... doubling per attempt
	backoff := time.Minute * time.Duration(1<<(attempts-1))
	next := time.Now().UTC().Add(backoff)

	w.log.Debug("delivery failed, will retry", "inbox", item.InboxURI, "attempt", attempts, "next", next, "err", cause)
	if err := w.client.DB.UpdateDeliveryAttempt(item.Id, attempts, next); err != nil {
		w.log.Error("recording delivery attempt", "id", item.Id, "err", err)
	}
}
