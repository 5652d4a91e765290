package federation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteInstance fakes a whole federated music server behind one
// httptest handler: webfinger, actor document, library collection and
// its pages.
type remoteInstance struct {
	srv           *httptest.Server
	keypair       *util.RsaKeyPair
	items         []json.RawMessage
	libraryStatus int
}

func newRemoteInstance(t *testing.T, items []json.RawMessage) *remoteInstance {
	t.Helper()

	ri := &remoteInstance{
		keypair:       util.GeneratePemKeypair(),
		items:         items,
		libraryStatus: 200,
	}
	ri.srv = httptest.NewServer(http.HandlerFunc(ri.handle))
	t.Cleanup(ri.srv.Close)
	return ri
}

func (ri *remoteInstance) host() string {
	return strings.TrimPrefix(ri.srv.URL, "http://")
}

func (ri *remoteInstance) libraryURL() string {
	return ri.srv.URL + "/federation/libraries/lib1"
}

func (ri *remoteInstance) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/.well-known/webfinger":
		json.NewEncoder(w).Encode(WebfingerResponse{
			Subject: r.URL.Query().Get("resource"),
			Links: []WebfingerLink{
				{Rel: "self", Type: "application/activity+json", Href: ri.srv.URL + "/federation/actors/alice"},
			},
		})
	case "/federation/actors/alice":
		actor := ActorResponse{
			Context:           "https://www.w3.org/ns/activitystreams",
			ID:                ri.srv.URL + "/federation/actors/alice",
			Type:              "Person",
			PreferredUsername: "alice",
			Inbox:             ri.srv.URL + "/federation/actors/alice/inbox",
		}
		actor.PublicKey.ID = actor.ID + "#main-key"
		actor.PublicKey.Owner = actor.ID
		actor.PublicKey.PublicKeyPem = ri.keypair.Public
		actor.URL, _ = json.Marshal([]ActorLink{{
			Type:      "Link",
			Name:      "library",
			MediaType: "application/activity+json",
			Href:      ri.libraryURL(),
		}})
		json.NewEncoder(w).Encode(&actor)
	case "/federation/libraries/lib1":
		if ri.libraryStatus != 200 {
			w.WriteHeader(ri.libraryStatus)
			return
		}
		conf := CollectionConfig{ID: ri.libraryURL(), Items: ri.items, PageSize: 5}
		if page := r.URL.Query().Get("page"); page != "" {
			n, _ := strconv.Atoi(page)
			p, err := ServePage(conf, n)
			if err != nil {
				w.WriteHeader(404)
				return
			}
			json.NewEncoder(w).Encode(p)
			return
		}
		json.NewEncoder(w).Encode(ServeCollection(conf))
	default:
		w.WriteHeader(404)
	}
}

func audioItems(t *testing.T, published ...time.Time) []json.RawMessage {
	t.Helper()
	items := make([]json.RawMessage, 0, len(published))
	for _, ts := range published {
		item := LibraryItem{
			ID:        uuid.NewString(),
			Type:      "Audio",
			Published: ts,
		}
		item.Metadata.Title = "track"
		item.Metadata.Artist = "artist"
		item.URL.Type = "Link"
		item.URL.Href = "http://files.example/audio.mp3"
		item.URL.MediaType = "audio/mpeg"
		raw, err := json.Marshal(&item)
		require.NoError(t, err)
		items = append(items, raw)
	}
	return items
}

func TestScanAccountHappyPath(t *testing.T) {
	now := time.Now().UTC()
	remote := newRemoteInstance(t, audioItems(t, now, now.Add(-time.Hour), now.Add(-2*time.Hour)))

	client := newTestClient(t, "music.example")
	client.HTTP = remote.srv.Client()

	report := client.ScanAccount("alice@" + remote.host())

	require.False(t, report.Webfinger.Failed(), "webfinger errors: %v", report.Webfinger.Errors)
	require.False(t, report.Actor.Failed(), "actor errors: %v", report.Actor.Errors)
	require.False(t, report.Library.Failed(), "library errors: %v", report.Library.Errors)
	require.False(t, report.FirstPage.Failed(), "first page errors: %v", report.FirstPage.Errors)

	assert.Equal(t, remote.srv.URL+"/federation/actors/alice", report.Webfinger.Data["actor_url"])
	assert.Equal(t, remote.libraryURL(), report.Actor.Data["library_url"])
	assert.Equal(t, 3, report.Library.Data["totalItems"])
	assert.Equal(t, 3, report.FirstPage.Data["items"])
}

func TestScanAccountInvalidHandle(t *testing.T) {
	client := newTestClient(t, "music.example")

	report := client.ScanAccount("not a handle")
	require.True(t, report.Webfinger.Failed())
	assert.Equal(t, []string{"Invalid account string"}, report.Webfinger.Errors)
	assert.Nil(t, report.Actor, "later stages never ran")
}

func TestScanAccountLibraryRequiresAuth(t *testing.T) {
	remote := newRemoteInstance(t, nil)
	remote.libraryStatus = 401

	client := newTestClient(t, "music.example")
	client.HTTP = remote.srv.Client()

	report := client.ScanAccount("alice@" + remote.host())

	require.False(t, report.Webfinger.Failed())
	require.False(t, report.Actor.Failed())
	require.True(t, report.Library.Failed())
	assert.Equal(t, []string{"This library requires authentication"}, report.Library.Errors)
	assert.Nil(t, report.FirstPage)
}

func TestScanAccountPermissionDenied(t *testing.T) {
	remote := newRemoteInstance(t, nil)
	remote.libraryStatus = 403

	client := newTestClient(t, "music.example")
	client.HTTP = remote.srv.Client()

	report := client.ScanAccount("alice@" + remote.host())
	require.True(t, report.Library.Failed())
	assert.Equal(t, []string{"Permission denied while scanning library"}, report.Library.Errors)
}

func TestScanAccountUnreachableWebfinger(t *testing.T) {
	client := newTestClient(t, "music.example")

	// nothing listens on this port
	report := client.ScanAccount("alice@127.0.0.1:1")
	require.True(t, report.Webfinger.Failed())
	assert.Equal(t, []string{"This webfinger resource is not reachable"}, report.Webfinger.Errors)
}

func TestFullScanStoresTracksAndStopsAtUntil(t *testing.T) {
	now := time.Now().UTC()
	// newest first, matching the producer's descending order
	remote := newRemoteInstance(t, audioItems(t,
		now,
		now.Add(-time.Hour),
		now.Add(-24*time.Hour),
		now.Add(-48*time.Hour),
	))

	client := newTestClient(t, "music.example")
	client.HTTP = remote.srv.Client()

	library := &domain.Library{
		Id:          uuid.New(),
		ActorURI:    remote.srv.URL + "/federation/actors/alice",
		Name:        "alice's library",
		FollowedURL: remote.libraryURL(),
		CreatedAt:   now,
	}
	require.NoError(t, client.DB.CreateLibrary(library))

	until := now.Add(-25 * time.Hour)
	stored, err := client.FullScan(library, &until)
	require.NoError(t, err)
	assert.Equal(t, 3, stored, "scan stops before the 48h-old item")

	// rescanning stores nothing new
	stored, err = client.FullScan(library, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stored, "only the item past the cutoff is new now")
}
