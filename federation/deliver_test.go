package federation

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nocturnefm/nocturne/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboxServer(t *testing.T, status int, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.NotEmpty(t, r.Header.Get("Signature"), "deliveries must be signed")
		w.WriteHeader(status)
	}))
}

func TestDeliverFanOutIsIndependent(t *testing.T) {
	client := newTestClient(t, "music.example")
	sender, err := client.SystemActor("library")
	require.NoError(t, err)

	var okHits, failHits int32
	first := inboxServer(t, 202, &okHits)
	defer first.Close()
	broken := inboxServer(t, 500, &failHits)
	defer broken.Close()
	third := inboxServer(t, 202, &okHits)
	defer third.Close()

	payload := []byte(`{"type":"Create"}`)
	results := client.Deliver(sender, payload, []string{
		first.URL + "/inbox",
		broken.URL + "/inbox",
		third.URL + "/inbox",
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err, "broken inbox fails its own delivery")
	assert.NoError(t, results[2].Err, "failure of one recipient never blocks the rest")

	assert.Equal(t, int32(2), atomic.LoadInt32(&okHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&failHits))
}

func TestDeliveryWorkerRetriesWithBackoff(t *testing.T) {
	client := newTestClient(t, "music.example")
	sender, err := client.SystemActor("library")
	require.NoError(t, err)

	var hits int32
	broken := inboxServer(t, 500, &hits)
	defer broken.Close()

	require.NoError(t, client.DB.EnqueueDelivery(makeDelivery(broken.URL+"/inbox", `{"type":"Accept"}`)))

	worker := NewDeliveryWorker(client, sender, testLogger())
	worker.drainOnce()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// the failed item is rescheduled into the future, so a second drain
	// right away does not retry it
	worker.drainOnce()
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	err, pending := client.DB.ReadPendingDeliveries(10)
	require.NoError(t, err)
	assert.Empty(t, *pending, "rescheduled item is not yet due")
}

func TestDeliveryWorkerRemovesDeliveredItems(t *testing.T) {
	client := newTestClient(t, "music.example")
	sender, err := client.SystemActor("library")
	require.NoError(t, err)

	var hits int32
	inbox := inboxServer(t, 202, &hits)
	defer inbox.Close()

	require.NoError(t, client.DB.EnqueueDelivery(makeDelivery(inbox.URL+"/inbox", `{"type":"Accept"}`)))

	worker := NewDeliveryWorker(client, sender, testLogger())
	worker.drainOnce()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	err, pending := client.DB.ReadPendingDeliveries(10)
	require.NoError(t, err)
	assert.Empty(t, *pending)

	// nothing left to deliver
	worker.drainOnce()
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDeliverOnCommitAttemptsImmediately(t *testing.T) {
	client := newTestClient(t, "music.example")

	var hits int32
	inbox := inboxServer(t, 202, &hits)
	defer inbox.Close()

	err := client.DB.WrapTransaction(func(tx *db.Tx) error {
		return client.DeliverOnCommit(tx, []byte(`{"type":"Accept"}`), []string{inbox.URL + "/inbox"})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 1
	}, 5*time.Second, 10*time.Millisecond, "delivery goes out right after commit")

	require.Eventually(t, func() bool {
		err, pending := client.DB.ReadPendingDeliveries(10)
		return err == nil && len(*pending) == 0
	}, 5*time.Second, 10*time.Millisecond, "delivered rows leave the queue")
}

func TestDeliverOnCommitLeavesRowForRetry(t *testing.T) {
	client := newTestClient(t, "music.example")

	var hits int32
	broken := inboxServer(t, 500, &hits)
	defer broken.Close()

	err := client.DB.WrapTransaction(func(tx *db.Tx) error {
		return client.DeliverOnCommit(tx, []byte(`{"type":"Accept"}`), []string{broken.URL + "/inbox"})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 1
	}, 5*time.Second, 10*time.Millisecond)

	err, pending := client.DB.ReadPendingDeliveries(10)
	require.NoError(t, err)
	assert.Len(t, *pending, 1, "failed first attempt stays queued for the worker")
}
