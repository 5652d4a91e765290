package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/feeds"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
)

// GetRSS renders the newest tracks of one library, or of the whole
// catalog, as an RSS feed.
func (s *Server) GetRSS(libraryParam string) (string, error) {
	var filter db.TrackFilter
	title := "Nocturne - All Tracks"
	link := fmt.Sprintf("http://%s:%d/feed", s.Conf.Conf.Host, s.Conf.Conf.HttpPort)

	if libraryParam != "" {
		libraryId, err := uuid.Parse(libraryParam)
		if err != nil {
			return "", errors.New("invalid library id")
		}
		err, library := s.DB.ReadLibraryById(libraryId)
		if err != nil {
			return "", errors.New("library not found")
		}
		title = fmt.Sprintf("Nocturne - %s", library.Name)
		link = fmt.Sprintf("%s?library=%s", link, library.Id)
		filter.LibraryId = &libraryId
	}

	err, tracks := s.DB.ReadTracks(filter)
	if err != nil {
		return "", errors.New("error retrieving tracks")
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: "latest tracks in this catalog",
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for i := range *tracks {
		track := &(*tracks)[i]
		feedItems = append(feedItems, trackFeedItem(track))
	}

	feed.Items = feedItems
	return feed.ToRss()
}

func trackFeedItem(track *domain.Track) *feeds.Item {
	title := track.Title
	if track.Artist != "" {
		title = fmt.Sprintf("%s - %s", track.Artist, track.Title)
	}
	return &feeds.Item{
		Id:      track.Id.String(),
		Title:   title,
		Link:    &feeds.Link{Href: track.AudioURL},
		Content: fmt.Sprintf("%s (%s)", title, track.Album),
		Created: track.PublishedAt,
	}
}
