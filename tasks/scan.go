package tasks

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/federation"
)

// LibraryScan walks a remote library's pages and stores unseen tracks.
type LibraryScan struct {
	TaskID  TaskID
	Client  *federation.Client
	Library *domain.Library
	Until   *time.Time
	Log     *log.Logger

	// set after Run
	Stored int
}

func NewLibraryScan(client *federation.Client, library *domain.Library, until *time.Time, logger *log.Logger) *LibraryScan {
	return &LibraryScan{
		TaskID:  TaskID(uuid.NewString()),
		Client:  client,
		Library: library,
		Until:   until,
		Log:     logger,
	}
}

func (s *LibraryScan) ID() TaskID {
	return s.TaskID
}

func (s *LibraryScan) Run() bool {
	stored, err := s.Client.FullScan(s.Library, s.Until)
	s.Stored = stored
	if err != nil {
		s.Log.Error("library scan failed", "library", s.Library.Id, "stored", stored, "err", err)
		return false
	}
	s.Log.Info("library scan finished", "library", s.Library.Id, "stored", stored)
	return true
}

// TrackImport marks already-scanned tracks as part of the local
// catalog.
type TrackImport struct {
	TaskID   TaskID
	Client   *federation.Client
	TrackIds []uuid.UUID
	Log      *log.Logger
}

func NewTrackImport(client *federation.Client, trackIds []uuid.UUID, logger *log.Logger) *TrackImport {
	return &TrackImport{
		TaskID:   TaskID(uuid.NewString()),
		Client:   client,
		TrackIds: trackIds,
		Log:      logger,
	}
}

func (t *TrackImport) ID() TaskID {
	return t.TaskID
}

func (t *TrackImport) Run() bool {
	if err := t.Client.DB.MarkTracksImported(t.TrackIds); err != nil {
		t.Log.Error("track import failed", "count", len(t.TrackIds), "err", err)
		return false
	}
	t.Log.Info("tracks imported", "count", len(t.TrackIds))
	return true
}
