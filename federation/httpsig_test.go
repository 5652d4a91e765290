package federation

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nocturnefm/nocturne/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyId = "https://music.example/federation/actors/alice#main-key"

func signedIncomingRequest(t *testing.T, keypair *util.RsaKeyPair, body []byte) *http.Request {
	t.Helper()

	priv, err := util.ParsePrivateKey(keypair.Private)
	require.NoError(t, err)

	outgoing, err := http.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, SignRequest(outgoing, priv, testKeyId, body))

	incoming := httptest.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	incoming.Header = outgoing.Header.Clone()
	return incoming
}

func staticResolver(pem string) KeyResolver {
	return func(keyId string) (string, error) {
		return pem, nil
	}
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	body := []byte(`{"type":"Follow"}`)

	incoming := signedIncomingRequest(t, keypair, body)

	actorURI, err := VerifyRequest(incoming, body, staticResolver(keypair.Public))
	require.NoError(t, err)
	assert.Equal(t, "https://music.example/federation/actors/alice", actorURI)
}

func TestSignAndVerifyBodylessRequest(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	priv, err := util.ParsePrivateKey(keypair.Private)
	require.NoError(t, err)

	outgoing, err := http.NewRequest("GET", "http://music.example/federation/libraries/x?page=1", nil)
	require.NoError(t, err)
	require.NoError(t, SignRequest(outgoing, priv, testKeyId, nil))
	assert.NotEmpty(t, outgoing.Header.Get("Digest"), "signed GETs carry the empty-body digest")

	incoming := httptest.NewRequest("GET", "http://music.example/federation/libraries/x?page=1", nil)
	incoming.Header = outgoing.Header.Clone()

	actorURI, err := VerifyRequest(incoming, nil, staticResolver(keypair.Public))
	require.NoError(t, err)
	assert.Equal(t, "https://music.example/federation/actors/alice", actorURI)
}

func TestVerifyRejectsMutatedBody(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	body := []byte(`{"type":"Follow"}`)

	incoming := signedIncomingRequest(t, keypair, body)

	tampered := []byte(`{"type":"Delete"}`)
	_, err := VerifyRequest(incoming, tampered, staticResolver(keypair.Public))
	assert.True(t, errors.Is(err, ErrAuthFailure))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	other := util.GeneratePemKeypair()
	body := []byte(`{"type":"Follow"}`)

	incoming := signedIncomingRequest(t, keypair, body)

	_, err := VerifyRequest(incoming, body, staticResolver(other.Public))
	assert.True(t, errors.Is(err, ErrAuthFailure))
}

func TestVerifyRejectsStaleDate(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	priv, err := util.ParsePrivateKey(keypair.Private)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	outgoing, err := http.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	outgoing.Header.Set("Date", time.Now().UTC().Add(-15*time.Minute).Format(http.TimeFormat))
	require.NoError(t, SignRequest(outgoing, priv, testKeyId, body))

	incoming := httptest.NewRequest("POST", "http://music.example/federation/inbox", bytes.NewReader(body))
	incoming.Header = outgoing.Header.Clone()

	_, err = VerifyRequest(incoming, body, staticResolver(keypair.Public))
	assert.True(t, errors.Is(err, ErrAuthFailure))
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	incoming := httptest.NewRequest("POST", "http://music.example/federation/inbox", nil)
	_, err := VerifyRequest(incoming, nil, staticResolver(""))
	assert.True(t, errors.Is(err, ErrAuthFailure))
}

func TestVerifyRejectsUnresolvableKey(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	body := []byte(`{"type":"Follow"}`)

	incoming := signedIncomingRequest(t, keypair, body)

	resolver := func(keyId string) (string, error) {
		return "", errors.New("no such actor")
	}
	_, err := VerifyRequest(incoming, body, resolver)
	assert.True(t, errors.Is(err, ErrAuthFailure))
}
