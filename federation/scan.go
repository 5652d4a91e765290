package federation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
)

// LibraryItem is the wire form of one audio entry in a remote library
// collection.
type LibraryItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Library   string    `json:"library,omitempty"`
	Published time.Time `json:"published"`
	Metadata  struct {
		Artist  string `json:"artist,omitempty"`
		Release string `json:"release,omitempty"`
		Title   string `json:"title,omitempty"`
		Size    int64  `json:"size,omitempty"`
		Bitrate int    `json:"bitrate,omitempty"`
		Length  int    `json:"length,omitempty"`
	} `json:"metadata"`
	URL struct {
		Type      string `json:"type"`
		Href      string `json:"href"`
		MediaType string `json:"mediaType"`
	} `json:"url"`
}

// Track converts the wire item into a local track row.
func (i *LibraryItem) Track(libraryId uuid.UUID) *domain.Track {
	return &domain.Track{
		Id:          uuid.New(),
		LibraryId:   libraryId,
		ItemURI:     i.ID,
		Title:       i.Metadata.Title,
		Artist:      i.Metadata.Artist,
		Album:       i.Metadata.Release,
		AudioURL:    i.URL.Href,
		MediaType:   i.URL.MediaType,
		Size:        i.Metadata.Size,
		Bitrate:     i.Metadata.Bitrate,
		Duration:    i.Metadata.Length,
		PublishedAt: i.Published,
		CreatedAt:   time.Now().UTC(),
	}
}

// ScanAccount probes a remote account handle stage by stage: webfinger
// resolution, actor fetch, library collection fetch, first page fetch.
// Remote faults stop the chain but are recovered into per-stage error
// strings; the partial report is always a valid result and the error
// return stays nil for anything a remote peer caused.
func (c *Client) ScanAccount(handle string) *domain.ScanReport {
	report := &domain.ScanReport{}

	username, dom, err := CleanAcct(handle)
	if err != nil {
		report.Webfinger = stageError("Invalid account string")
		return report
	}

	c.fillLocalStatus(report, username, dom)

	actorURL, err := c.ResolveAccount(handle)
	if err != nil {
		report.Webfinger = webfingerStageError(err)
		return report
	}
	report.Webfinger = stageData(map[string]interface{}{"actor_url": actorURL})

	actorDoc, err := c.FetchActorDoc(actorURL)
	if err != nil {
		report.Actor = actorStageError(err)
		return report
	}
	libraryURL := actorDoc.LibraryURL()
	if libraryURL == "" {
		report.Actor = stageError("Invalid ActivityPub actor")
		return report
	}
	report.Actor = stageData(map[string]interface{}{
		"id":          actorDoc.ID,
		"library_url": libraryURL,
	})

	collection, err := c.FetchCollection(libraryURL)
	if err != nil {
		report.Library = libraryStageError(err)
		return report
	}
	report.Library = stageData(map[string]interface{}{
		"id":         collection.ID,
		"totalItems": collection.TotalItems,
		"first":      collection.First,
		"name":       collection.Name,
	})

	page, err := c.fetchPage(collection.First)
	if err != nil {
		report.FirstPage = libraryStageError(err)
		return report
	}
	report.FirstPage = stageData(map[string]interface{}{
		"id":    page.ID,
		"items": len(page.Items),
		"next":  page.Next,
	})

	return report
}

// fillLocalStatus records whether our system library actor already
// follows the scanned account.
func (c *Client) fillLocalStatus(report *domain.ScanReport, username, dom string) {
	err, remote := c.DB.ReadActorByUsername(username, dom)
	if err != nil {
		return
	}

	system, err := c.SystemActor("library")
	if err != nil {
		return
	}

	err, follow := c.DB.ReadFollowByPair(system.ActorURI, remote.ActorURI)
	if err != nil {
		return
	}

	report.Local.Following = true
	report.Local.AwaitingApproval = follow.Pending()
}

// FullScan walks a remote library's pages newest-first, storing every
// unseen track, and stops early once items get older than until.
// Returns the number of new tracks stored.
func (c *Client) FullScan(library *domain.Library, until *time.Time) (int, error) {
	if library.FollowedURL == "" {
		return 0, fmt.Errorf("library %s has no remote url", library.Id)
	}

	collection, err := c.FetchCollection(library.FollowedURL)
	if err != nil {
		return 0, err
	}

	stored := 0
	walker := c.WalkPages(collection.First)
	for !walker.Done() {
		rawItems, err := walker.Next()
		if err != nil {
			return stored, err
		}

		for _, raw := range rawItems {
			var item LibraryItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			if until != nil && item.Published.Before(*until) {
				return stored, nil
			}
			if err, _ := c.DB.ReadTrackByItemURI(item.ID); err == nil {
				continue
			}
			track := item.Track(library.Id)
			track.Imported = library.AutoImport
			if err := c.DB.CreateTrack(track); err != nil {
				return stored, err
			}
			stored++
		}
	}

	return stored, nil
}

func stageError(msgs ...string) *domain.StageResult {
	return &domain.StageResult{Errors: msgs}
}

func stageData(data map[string]interface{}) *domain.StageResult {
	return &domain.StageResult{Data: data}
}

func webfingerStageError(err error) *domain.StageResult {
	var rerr *ResolutionError
	if errors.As(err, &rerr) {
		switch rerr.Reason {
		case ResolutionMalformedHandle:
			return stageError("Invalid account string")
		case ResolutionUnreachable:
			return stageError("This webfinger resource is not reachable")
		case ResolutionStatus:
			return stageError(fmt.Sprintf("Error %d during webfinger request", rerr.Status))
		}
	}
	return stageError("Could not process webfinger response")
}

func actorStageError(err error) *domain.StageResult {
	var ferr *FetchError
	if errors.As(err, &ferr) {
		switch ferr.Reason {
		case FetchUnreachable:
			return stageError("This actor is not reachable")
		case FetchStatus:
			return stageError(fmt.Sprintf("Error %d during actor request", ferr.Status))
		}
	}
	return stageError("Invalid ActivityPub actor")
}

func libraryStageError(err error) *domain.StageResult {
	var ferr *FetchError
	if errors.As(err, &ferr) {
		switch ferr.Reason {
		case FetchUnreachable:
			return stageError("This library is not reachable")
		case FetchStatus:
			switch ferr.Status {
			case 401:
				return stageError("This library requires authentication")
			case 403:
				return stageError("Permission denied while scanning library")
			default:
				return stageError(fmt.Sprintf("Error %d while fetching the library", ferr.Status))
			}
		}
	}
	return stageError("Invalid ActivityPub response from remote library")
}
