package web

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nocturnefm/nocturne/federation"
	"github.com/nocturnefm/nocturne/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxRejectsUnsignedActivity(t *testing.T) {
	server := newTestServer(t)
	router := server.Router()

	body := []byte(`{"id":"x","type":"Follow","actor":"https://remote.example/actor","object":"y"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/federation/inbox", bytes.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// An activity signed with a key the server cannot resolve is rejected
// before any handler runs.
func TestInboxRejectsUnknownSigner(t *testing.T) {
	server := newTestServer(t)
	router := server.Router()

	keypair := util.GeneratePemKeypair()
	priv, err := util.ParsePrivateKey(keypair.Private)
	require.NoError(t, err)

	body := []byte(`{"id":"x","type":"Follow","actor":"https://ghost.example/actor","object":"y"}`)
	req := httptest.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	// ghost.example is unreachable, so key resolution fails
	require.NoError(t, federation.SignRequest(req, priv, "https://ghost.example/actor#main-key", body))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	err, follows := server.DB.ReadFollowsByTargetURI("y")
	require.NoError(t, err)
	assert.Empty(t, *follows, "no handler ran for the rejected activity")
}

func TestInboxAcceptsSignedActivity(t *testing.T) {
	server := newTestServer(t)
	remote, keypair := storeRemoteActor(t, server, "alice")
	router := server.Router()

	priv, err := util.ParsePrivateKey(keypair.Private)
	require.NoError(t, err)

	target := "https://music.example/federation/libraries/x"
	body := []byte(fmt.Sprintf(`{
		"id": "https://remote.example/activities/1",
		"type": "Follow",
		"actor": %q,
		"object": %q
	}`, remote.ActorURI, target))

	req := httptest.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	require.NoError(t, federation.SignRequest(req, priv, remote.ActorURI+"#main-key", body))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	err, follow := server.DB.ReadFollowByPair(remote.ActorURI, target)
	require.NoError(t, err)
	assert.NotNil(t, follow)
}

func TestInboxRejectsActorSignerMismatch(t *testing.T) {
	server := newTestServer(t)
	remote, keypair := storeRemoteActor(t, server, "alice")
	router := server.Router()

	priv, err := util.ParsePrivateKey(keypair.Private)
	require.NoError(t, err)

	// signed by alice, but the payload claims another actor
	body := []byte(`{
		"id": "https://remote.example/activities/2",
		"type": "Follow",
		"actor": "https://remote.example/federation/actors/mallory",
		"object": "https://music.example/federation/libraries/x"
	}`)

	req := httptest.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	require.NoError(t, federation.SignRequest(req, priv, remote.ActorURI+"#main-key", body))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
