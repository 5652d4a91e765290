package federation

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/nocturnefm/nocturne/util"
)

// Headers covered by every signature. Digest only matters for requests
// with a body; GET requests sign an empty digest.
var signedHeaders = []string{"(request-target)", "host", "date", "digest"}

// Signatures older than this are rejected to bound replay.
const dateSkewTolerance = 5 * time.Minute

// SignRequest signs an outgoing HTTP request with the given private key.
// keyId format: "https://music.example/federation/actors/library#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}
	// Digest is in the covered header set, and the library only emits
	// it for a non-nil body. Bodyless requests sign the empty digest.
	if body == nil {
		body = []byte{}
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return authFailure("failed to create signer: %v", err)
	}

	return signer.SignRequest(privateKey, keyId, req, body)
}

// KeyResolver maps a signature key id to a PEM public key. The lookup
// may itself fetch the remote actor that owns the key.
type KeyResolver func(keyId string) (string, error)

// VerifyRequest verifies the HTTP signature on an incoming request and
// returns the signing actor's URI. Every input of the signing string is
// re-derived from the live request; header-claimed values are never
// trusted. body must be the raw request body already read by the caller.
func VerifyRequest(req *http.Request, body []byte, resolve KeyResolver) (string, error) {
	sigHeader := req.Header.Get("Signature")
	if sigHeader == "" {
		return "", authFailure("missing signature header")
	}

	keyId, headerList := parseSignatureHeader(sigHeader)
	if keyId == "" {
		return "", authFailure("malformed signature header")
	}

	for _, required := range []string{"(request-target)", "host", "date"} {
		if !containsHeader(headerList, required) {
			return "", authFailure("signature does not cover %s", required)
		}
	}

	if err := checkDate(req.Header.Get("Date")); err != nil {
		return "", err
	}

	// The digest header is part of the signing string, so verify it
	// against the body actually received before trusting it.
	if len(body) > 0 {
		if !containsHeader(headerList, "digest") {
			return "", authFailure("signature does not cover digest")
		}
		if err := checkDigest(req.Header.Get("Digest"), body); err != nil {
			return "", err
		}
	}

	publicKeyPem, err := resolve(keyId)
	if err != nil {
		return "", authFailure("could not resolve key %s: %v", keyId, err)
	}

	pubKey, err := util.ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", authFailure("bad public key for %s: %v", keyId, err)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", authFailure("failed to create verifier: %v", err)
	}

	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return "", authFailure("signature verification failed: %v", err)
	}

	// keyId is "https://example.com/federation/actors/alice#main-key";
	// the actor URI is everything before the fragment.
	return strings.Split(keyId, "#")[0], nil
}

func checkDate(dateHeader string) error {
	if dateHeader == "" {
		return authFailure("missing date header")
	}
	sent, err := http.ParseTime(dateHeader)
	if err != nil {
		return authFailure("unparseable date header: %v", err)
	}
	delta := time.Since(sent)
	if delta > dateSkewTolerance || delta < -dateSkewTolerance {
		return authFailure("date header outside of tolerance: %s", dateHeader)
	}
	return nil
}

func checkDigest(digestHeader string, body []byte) error {
	if digestHeader == "" {
		return authFailure("missing digest header")
	}
	hash := sha256.Sum256(body)
	expected := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(digestHeader)) != 1 {
		return authFailure("digest mismatch")
	}
	return nil
}

// parseSignatureHeader extracts keyId and the signed header list from a
// Signature header of the form `keyId="...",headers="...",signature="..."`.
func parseSignatureHeader(header string) (keyId string, headers []string) {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "keyId":
			keyId = value
		case "headers":
			headers = strings.Fields(strings.ToLower(value))
		}
	}
	return keyId, headers
}

func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
