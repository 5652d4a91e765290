package web

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/federation"
	"github.com/nocturnefm/nocturne/tasks"
	"github.com/nocturnefm/nocturne/util"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "test-admin-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open(":memory:")
	require.NoError(t, err)

	conf := &util.AppConfig{}
	conf.Conf.Host = "127.0.0.1"
	conf.Conf.HttpPort = 8080
	conf.Conf.Domain = "music.example"
	conf.Conf.WithFederation = true
	conf.Conf.CollectionPageSize = 5
	conf.Conf.AdminToken = testAdminToken

	logger := log.New(io.Discard)
	fed := federation.NewClient(database, conf)

	return &Server{
		Conf:       conf,
		DB:         database,
		Fed:        fed,
		Dispatcher: federation.NewDispatcher(fed, logger),
		Runner:     tasks.NewRunner(tasks.NewMemoryQueue(4), tasks.NewMemoryStorage(), logger),
		Log:        logger,
	}
}

func storeLocalActor(t *testing.T, s *Server, username string) *domain.Actor {
	t.Helper()
	keypair := util.GeneratePemKeypair()
	actorURI := "https://music.example/federation/actors/" + username
	actor := &domain.Actor{
		Id:            uuid.New(),
		Username:      username,
		Domain:        "music.example",
		ActorURI:      actorURI,
		DisplayName:   username,
		InboxURI:      actorURI + "/inbox",
		OutboxURI:     actorURI + "/outbox",
		PublicKeyPem:  keypair.Public,
		PrivateKeyPem: keypair.Private,
		LastFetchedAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.DB.CreateActor(actor))
	return actor
}

func storeRemoteActor(t *testing.T, s *Server, username string) (*domain.Actor, *util.RsaKeyPair) {
	t.Helper()
	keypair := util.GeneratePemKeypair()
	actorURI := "https://remote.example/federation/actors/" + username
	actor := &domain.Actor{
		Id:            uuid.New(),
		Username:      username,
		Domain:        "remote.example",
		ActorURI:      actorURI,
		InboxURI:      actorURI + "/inbox",
		PublicKeyPem:  keypair.Public,
		LastFetchedAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.DB.CreateActor(actor))
	return actor, keypair
}

func storeTestLibrary(t *testing.T, s *Server, privacy string, trackCount int) *domain.Library {
	t.Helper()
	library := &domain.Library{
		Id:                uuid.New(),
		ActorURI:          "https://music.example/federation/actors/owner",
		Name:              "test library",
		PrivacyLevel:      privacy,
		FederationEnabled: true,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, s.DB.CreateLibrary(library))

	now := time.Now().UTC()
	for i := 1; i <= trackCount; i++ {
		track := &domain.Track{
			Id:          uuid.New(),
			LibraryId:   library.Id,
			ItemURI:     library.ActorURI + "/tracks/" + uuid.NewString(),
			Title:       "track",
			Artist:      "artist",
			AudioURL:    "https://music.example/files/a.mp3",
			MediaType:   "audio/mpeg",
			PublishedAt: now.Add(-time.Duration(i) * time.Minute),
			CreatedAt:   now,
		}
		require.NoError(t, s.DB.CreateTrack(track))
	}
	return library
}
