package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/federation"
)

const activityContentType = "application/activity+json; charset=utf-8"

// HandleWebfinger resolves acct: resources for local actors. Malformed
// or unknown resources answer 400 with a structured error body instead
// of 404 so clients can distinguish them from a missing route.
func (s *Server) HandleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	if resource == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"resource": "This field is required"}})
		return
	}

	resourceType, rest, found := strings.Cut(resource, ":")
	if !found || resourceType != "acct" {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"resource": "Missing webfinger resource type"}})
		return
	}

	username, dom, err := federation.CleanAcct(rest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"resource": "Invalid resource string"}})
		return
	}
	if dom != s.Conf.Conf.Domain {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"resource": "Invalid hostname"}})
		return
	}

	err, actor := s.DB.ReadLocalActorByUsername(username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"resource": "Invalid username"}})
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, federation.WebfingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", actor.Username, s.Conf.Conf.Domain),
		Links: []federation.WebfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actor.ActorURI,
			},
		},
	})
}

// HandleActor serves a local actor's ActivityPub document.
func (s *Server) HandleActor(c *gin.Context) {
	err, actor := s.DB.ReadLocalActorByUsername(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown actor"})
		return
	}

	c.Header("Content-Type", activityContentType)
	c.JSON(http.StatusOK, s.actorDocument(actor))
}

func (s *Server) actorDocument(actor *domain.Actor) *federation.ActorResponse {
	doc := &federation.ActorResponse{
		Context:           "https://www.w3.org/ns/activitystreams",
		ID:                actor.ActorURI,
		Type:              "Person",
		PreferredUsername: actor.Username,
		Name:              actor.DisplayName,
		Summary:           actor.Summary,
		Inbox:             actor.InboxURI,
		Outbox:            actor.OutboxURI,
	}
	if actor.System {
		doc.Type = "Service"
	}
	doc.PublicKey.ID = actor.KeyId()
	doc.PublicKey.Owner = actor.ActorURI
	doc.PublicKey.PublicKeyPem = actor.PublicKeyPem

	// Advertise the first federation-enabled library as the actor's
	// library collection.
	if err, libraries := s.DB.ReadLibrariesByActorURI(actor.ActorURI); err == nil {
		for i := range *libraries {
			lib := &(*libraries)[i]
			if !lib.FederationEnabled {
				continue
			}
			links := []federation.ActorLink{{
				Type:      "Link",
				Name:      "library",
				MediaType: "application/activity+json",
				Href:      s.Fed.LibraryURI(lib),
			}}
			doc.URL, _ = json.Marshal(links)
			break
		}
	}

	return doc
}

// HandleInbox accepts a signed activity for a local actor. An absent or
// invalid signature yields 401; a verified activity always answers 200
// even when its handler failed, so remote peers do not retry forever.
func (s *Server) HandleInbox(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	actorURI, err := federation.VerifyRequest(c.Request, body, s.Fed.ResolveKey)
	if err != nil {
		s.Log.Debug("inbox signature rejected", "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "You need a valid signature to send an activity"})
		return
	}

	if err := s.Dispatcher.Receive(body, actorURI); err != nil {
		if errors.Is(err, federation.ErrAuthFailure) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "You need a valid signature to send an activity"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unprocessable activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

// HandleLibrary serves a library's collection summary, or one of its
// pages when ?page is present. Summaries are public metadata; pages go
// through the access check.
func (s *Server) HandleLibrary(c *gin.Context) {
	libraryId, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}
	err, library := s.DB.ReadLibraryById(libraryId)
	if err != nil || !library.FederationEnabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}

	conf, err := s.collectionConfig(library)
	if err != nil {
		s.Log.Error("building library collection", "library", library.Id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.Header("Content-Type", activityContentType)

	pageParam := c.Query("page")
	if pageParam == "" {
		c.JSON(http.StatusOK, federation.ServeCollection(conf))
		return
	}

	if !s.Fed.HasAccess(library, s.requestActor(c), s.isOperator(c)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "You do not have access to this library"})
		return
	}

	pageNumber, err := strconv.Atoi(pageParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"page": []string{"Invalid page number"}})
		return
	}

	page, err := federation.ServePage(conf, pageNumber)
	switch {
	case errors.Is(err, federation.ErrInvalidPage):
		c.JSON(http.StatusBadRequest, gin.H{"page": []string{"Invalid page number"}})
	case errors.Is(err, federation.ErrEmptyPage):
		c.Status(http.StatusNotFound)
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	default:
		c.JSON(http.StatusOK, page)
	}
}

// collectionConfig assembles the paginated view over a library's
// tracks, newest first.
func (s *Server) collectionConfig(library *domain.Library) (federation.CollectionConfig, error) {
	libraryId := library.Id
	err, tracks := s.DB.ReadTracks(db.TrackFilter{LibraryId: &libraryId})
	if err != nil {
		return federation.CollectionConfig{}, err
	}

	items := make([]json.RawMessage, 0, len(*tracks))
	for i := range *tracks {
		raw, err := json.Marshal(trackItem(&(*tracks)[i], s.Fed.LibraryURI(library)))
		if err != nil {
			return federation.CollectionConfig{}, err
		}
		items = append(items, raw)
	}

	return federation.CollectionConfig{
		ID:       s.Fed.LibraryURI(library),
		Actor:    library.ActorURI,
		Name:     library.Name,
		Summary:  library.Summary,
		Items:    items,
		PageSize: s.Conf.Conf.CollectionPageSize,
	}, nil
}

func trackItem(track *domain.Track, libraryURI string) *federation.LibraryItem {
	item := &federation.LibraryItem{
		ID:        track.ItemURI,
		Type:      "Audio",
		Library:   libraryURI,
		Published: track.PublishedAt,
	}
	item.Metadata.Artist = track.Artist
	item.Metadata.Release = track.Album
	item.Metadata.Title = track.Title
	item.Metadata.Size = track.Size
	item.Metadata.Bitrate = track.Bitrate
	item.Metadata.Length = track.Duration
	item.URL.Type = "Link"
	item.URL.Href = track.AudioURL
	item.URL.MediaType = track.MediaType
	return item
}

// requestActor verifies an optional request signature and returns the
// signer's actor URI, or "" for anonymous and failed-verification
// requests.
func (s *Server) requestActor(c *gin.Context) string {
	if c.GetHeader("Signature") == "" {
		return ""
	}
	actorURI, err := federation.VerifyRequest(c.Request, nil, s.Fed.ResolveKey)
	if err != nil {
		s.Log.Debug("request signature rejected", "err", err)
		return ""
	}
	return actorURI
}
