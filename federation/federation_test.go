package federation

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/util"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a client against a throwaway in-memory database.
// The scheme is dropped to plain http so httptest servers can stand in
// for remote instances.
func newTestClient(t *testing.T, domainName string) *Client {
	t.Helper()

	database, err := db.Open(":memory:")
	require.NoError(t, err)

	conf := &util.AppConfig{}
	conf.Conf.Domain = domainName
	conf.Conf.WithFederation = true
	conf.Conf.CollectionPageSize = 5

	client := NewClient(database, conf)
	client.scheme = "http"
	return client
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func makeDelivery(inboxURI, payload string) *domain.DeliveryItem {
	now := time.Now().UTC()
	return &domain.DeliveryItem{
		Id:           uuid.New(),
		InboxURI:     inboxURI,
		ActivityJSON: payload,
		NextRetryAt:  now.Add(-time.Second),
		CreatedAt:    now,
	}
}
