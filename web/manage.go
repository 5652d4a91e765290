package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/federation"
	"github.com/nocturnefm/nocturne/tasks"
)

// HandleListFollows lists the follow requests against one of our
// libraries, or all of them without a target filter.
func (s *Server) HandleListFollows(c *gin.Context) {
	target := c.Query("target")
	if target != "" {
		err, follows := s.DB.ReadFollowsByTargetURI(target)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": followViews(*follows)})
		return
	}

	err, libraries := s.DB.ReadAllLibraries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	var all []domain.Follow
	for i := range *libraries {
		lib := &(*libraries)[i]
		err, follows := s.DB.ReadFollowsByTargetURI(s.Fed.LibraryURI(lib))
		if err != nil {
			continue
		}
		all = append(all, *follows...)
	}
	c.JSON(http.StatusOK, gin.H{"results": followViews(all)})
}

type followView struct {
	Id        uuid.UUID `json:"id"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target"`
	URI       string    `json:"uri"`
	Approved  *bool     `json:"approved"`
	CreatedAt time.Time `json:"creation_date"`
}

func followViews(follows []domain.Follow) []followView {
	views := make([]followView, 0, len(follows))
	for _, f := range follows {
		views = append(views, followView{
			Id:        f.Id,
			Actor:     f.ActorURI,
			Target:    f.TargetURI,
			URI:       f.URI,
			Approved:  f.Approved,
			CreatedAt: f.CreatedAt,
		})
	}
	return views
}

// HandleDecideFollow approves or rejects a pending follow. Deciding an
// already-decided follow is a conflict, not a silent overwrite.
func (s *Server) HandleDecideFollow(c *gin.Context) {
	followId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Follow not found"})
		return
	}

	var body struct {
		Approved *bool `json:"approved"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Approved == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field approved is required"})
		return
	}

	if *body.Approved {
		err = s.Fed.AcceptFollow(followId)
	} else {
		err = s.Fed.RejectFollow(followId)
	}

	switch {
	case errors.Is(err, federation.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "Follow is already decided"})
	case err != nil:
		c.JSON(http.StatusNotFound, gin.H{"error": "Follow not found"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// HandleScanAccount probes a remote account and returns the per-stage
// report. Remote faults land inside the report, never as a 5xx.
func (s *Server) HandleScanAccount(c *gin.Context) {
	var body struct {
		Account string `json:"account"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field account is required"})
		return
	}

	c.JSON(http.StatusOK, s.Fed.ScanAccount(body.Account))
}

// HandleFollowLibrary resolves a remote account, fetches its actor and
// requests a follow on its advertised library for our system library
// actor.
func (s *Server) HandleFollowLibrary(c *gin.Context) {
	var body struct {
		Account string `json:"account"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field account is required"})
		return
	}

	actorURL, err := s.Fed.ResolveAccount(body.Account)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not resolve account"})
		return
	}

	remote, err := s.Fed.GetOrFetchActor(actorURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not fetch actor"})
		return
	}

	doc, err := s.Fed.FetchActorDoc(actorURL)
	if err != nil || doc.LibraryURL() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account advertises no library"})
		return
	}

	system, err := s.Fed.SystemActor("library")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	follow, err := s.Fed.RequestFollow(system, remote, doc.LibraryURL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	library := &domain.Library{
		Id:          uuid.New(),
		ActorURI:    remote.ActorURI,
		Name:        remote.DisplayName,
		FollowedURL: doc.LibraryURL(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.DB.CreateLibrary(library); err != nil {
		s.Log.Warn("remote library row not stored", "url", library.FollowedURL, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"follow":  followViews([]domain.Follow{*follow})[0],
		"library": library.Id,
	})
}

// HandleListLibraries lists every known library row, local and followed.
func (s *Server) HandleListLibraries(c *gin.Context) {
	err, libraries := s.DB.ReadAllLibraries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": libraries, "count": len(*libraries)})
}

// HandleLibraryDetail returns a single library row.
func (s *Server) HandleLibraryDetail(c *gin.Context) {
	libraryId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}
	err, library := s.DB.ReadLibraryById(libraryId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}
	c.JSON(http.StatusOK, library)
}

// HandlePatchLibrary applies a partial update to a library row. Only
// fields present in the body change.
func (s *Server) HandlePatchLibrary(c *gin.Context) {
	libraryId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}
	err, library := s.DB.ReadLibraryById(libraryId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}

	var body struct {
		Name              *string `json:"name"`
		Summary           *string `json:"summary"`
		PrivacyLevel      *string `json:"privacy_level"`
		FederationEnabled *bool   `json:"federation_enabled"`
		AutoImport        *bool   `json:"auto_import"`
		DownloadFiles     *bool   `json:"download_files"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body"})
		return
	}

	if body.Name != nil {
		library.Name = *body.Name
	}
	if body.Summary != nil {
		library.Summary = *body.Summary
	}
	if body.PrivacyLevel != nil {
		switch *body.PrivacyLevel {
		case domain.PrivacyEveryone, domain.PrivacyFollowers, domain.PrivacyPrivate:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid privacy level"})
			return
		}
		library.PrivacyLevel = *body.PrivacyLevel
	}
	if body.FederationEnabled != nil {
		library.FederationEnabled = *body.FederationEnabled
	}
	if body.AutoImport != nil {
		library.AutoImport = *body.AutoImport
	}
	if body.DownloadFiles != nil {
		library.DownloadFiles = *body.DownloadFiles
	}

	if err := s.DB.UpdateLibrary(library); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, library)
}

// HandleScanLibrary queues a full page walk over a followed library and
// returns the task id immediately.
func (s *Server) HandleScanLibrary(c *gin.Context) {
	libraryId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}
	err, library := s.DB.ReadLibraryById(libraryId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Library not found"})
		return
	}

	var body struct {
		Until *time.Time `json:"until"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body"})
			return
		}
	}

	task := tasks.NewLibraryScan(s.Fed, library, body.Until, s.Log)
	id := s.Runner.Submit(task)
	c.JSON(http.StatusOK, gin.H{"task": id})
}

// HandleListTracks lists scanned tracks with optional filters.
func (s *Server) HandleListTracks(c *gin.Context) {
	var filter db.TrackFilter

	if v := c.Query("library"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid library id"})
			return
		}
		filter.LibraryId = &id
	}
	if v := c.Query("imported"); v != "" {
		imported := v == "true"
		filter.Imported = &imported
	}
	filter.Artist = c.Query("artist")
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since timestamp"})
			return
		}
		filter.Since = &since
	}

	err, tracks := s.DB.ReadTracks(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": tracks, "count": len(*tracks)})
}

// HandleImportTracks queues marking the given tracks as imported.
func (s *Server) HandleImportTracks(c *gin.Context) {
	var body struct {
		Ids []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field ids is required"})
		return
	}

	task := tasks.NewTrackImport(s.Fed, body.Ids, s.Log)
	id := s.Runner.Submit(task)
	c.JSON(http.StatusOK, gin.H{"task": id})
}

// HandleTaskStatus reports one task's state.
func (s *Server) HandleTaskStatus(c *gin.Context) {
	id := tasks.TaskID(c.Param("id"))
	succeeded, finished := s.Runner.Result(id)
	c.JSON(http.StatusOK, gin.H{
		"task":      id,
		"finished":  finished,
		"succeeded": succeeded,
	})
}
