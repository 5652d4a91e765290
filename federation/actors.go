package federation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/util"
)

// ActorLink is a named link attached to an actor document. Music servers
// advertise their library collection through a link named "library".
type ActorLink struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Href      string `json:"href"`
}

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           interface{}     `json:"@context"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name"`
	Summary           string          `json:"summary"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox"`
	URL               json.RawMessage `json:"url,omitempty"`
	PublicKey         struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Validate checks the fields every usable actor document must carry.
func (a *ActorResponse) Validate() error {
	if a.ID == "" || a.Inbox == "" || a.PublicKey.ID == "" || a.PublicKey.PublicKeyPem == "" {
		return fmt.Errorf("actor missing required fields")
	}
	return nil
}

// LibraryURL extracts the href of the "library" link if the actor
// advertises one. The url field may be a bare string or a list of links.
func (a *ActorResponse) LibraryURL() string {
	if len(a.URL) == 0 {
		return ""
	}
	var links []ActorLink
	if err := json.Unmarshal(a.URL, &links); err != nil {
		return ""
	}
	for _, link := range links {
		if link.Name == "library" {
			return link.Href
		}
	}
	return ""
}

// FetchActorDoc issues a signed GET for an actor document and validates
// it. Signing uses the system library actor's key.
func (c *Client) FetchActorDoc(actorURI string) (*ActorResponse, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	if err := c.signAsSystemActor(req, nil); err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: FetchUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Reason: FetchStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	if err := actor.Validate(); err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	return &actor, nil
}

// FetchActor fetches a remote actor and stores it in the local cache.
// A failed fetch is never cached.
func (c *Client) FetchActor(actorURI string) (*domain.Actor, error) {
	doc, err := c.FetchActorDoc(actorURI)
	if err != nil {
		return nil, err
	}

	domainName, err := extractDomain(doc.ID)
	if err != nil {
		return nil, &FetchError{Reason: FetchInvalidDocument, Err: err}
	}

	actor := &domain.Actor{
		Id:            uuid.New(),
		Username:      doc.PreferredUsername,
		Domain:        domainName,
		ActorURI:      doc.ID,
		DisplayName:   doc.Name,
		Summary:       doc.Summary,
		InboxURI:      doc.Inbox,
		OutboxURI:     doc.Outbox,
		PublicKeyPem:  doc.PublicKey.PublicKeyPem,
		LastFetchedAt: time.Now(),
		CreatedAt:     time.Now(),
	}

	if err := c.DB.CreateActor(actor); err != nil {
		// Already known, refresh the profile (keys may have rotated)
		if err := c.DB.UpdateActor(actor); err != nil {
			return nil, fmt.Errorf("failed to store actor: %w", err)
		}
	}

	return actor, nil
}

// GetOrFetchActor returns an actor from cache, fetching when the cached
// copy is missing or older than 24 hours.
func (c *Client) GetOrFetchActor(actorURI string) (*domain.Actor, error) {
	err, cached := c.DB.ReadActorByURI(actorURI)
	if err == nil && cached != nil {
		if cached.Local() || time.Since(cached.LastFetchedAt) < 24*time.Hour {
			return cached, nil
		}
	}

	return c.FetchActor(actorURI)
}

// ResolveKey maps a signature key id to the owning actor's public key,
// fetching the actor when it is not cached yet. Plugged into
// VerifyRequest as the KeyResolver.
func (c *Client) ResolveKey(keyId string) (string, error) {
	actorURI := keyIdOwner(keyId)
	actor, err := c.GetOrFetchActor(actorURI)
	if err != nil {
		return "", err
	}
	return actor.PublicKeyPem, nil
}

// System actors: well-known instance-level identities, one per name.
// Materialized lazily, persisted once, then served from a per-client
// read-through cache.

var SystemActorNames = []string{"library", "instance"}

// SystemActor returns the instance-level actor with the given name,
// creating and persisting it (with a fresh keypair) on first use.
func (c *Client) SystemActor(name string) (*domain.Actor, error) {
	if !isSystemActorName(name) {
		return nil, fmt.Errorf("unknown system actor %q", name)
	}

	c.systemActorMu.Lock()
	defer c.systemActorMu.Unlock()

	if c.systemActors == nil {
		c.systemActors = map[string]*domain.Actor{}
	}
	if actor, ok := c.systemActors[name]; ok {
		return actor, nil
	}

	err, actor := c.DB.ReadActorByUsername(name, c.Conf.Conf.Domain)
	if err == nil && actor != nil {
		c.systemActors[name] = actor
		return actor, nil
	}

	keypair := util.GeneratePemKeypair()
	actorURI := c.localActorURI(name)
	actor = &domain.Actor{
		Id:            uuid.New(),
		Username:      name,
		Domain:        c.Conf.Conf.Domain,
		ActorURI:      actorURI,
		DisplayName:   fmt.Sprintf("%s (%s)", name, c.Conf.Conf.Domain),
		Summary:       fmt.Sprintf("%s service actor of %s", name, c.Conf.Conf.Domain),
		InboxURI:      actorURI + "/inbox",
		OutboxURI:     actorURI + "/outbox",
		PublicKeyPem:  keypair.Public,
		PrivateKeyPem: keypair.Private,
		System:        true,
		LastFetchedAt: time.Now(),
		CreatedAt:     time.Now(),
	}

	if err := c.DB.CreateActor(actor); err != nil {
		return nil, fmt.Errorf("failed to persist system actor %s: %w", name, err)
	}
	log.Infof("Created system actor %s", actor.Handle())

	c.systemActors[name] = actor
	return actor, nil
}

func (c *Client) signAsSystemActor(req *http.Request, body []byte) error {
	system, err := c.SystemActor("library")
	if err != nil {
		return err
	}
	privateKey, err := util.ParsePrivateKey(system.PrivateKeyPem)
	if err != nil {
		return err
	}
	return SignRequest(req, privateKey, system.KeyId(), body)
}

func (c *Client) localActorURI(name string) string {
	u := url.URL{
		Scheme: c.scheme,
		Host:   c.Conf.Conf.Domain,
		Path:   "/federation/actors/" + name,
	}
	return u.String()
}

func isSystemActorName(name string) bool {
	for _, n := range SystemActorNames {
		if n == name {
			return true
		}
	}
	return false
}

func keyIdOwner(keyId string) string {
	owner, _, _ := strings.Cut(keyId, "#")
	return owner
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}
