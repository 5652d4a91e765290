package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTrack(libraryId uuid.UUID, artist string, published time.Time) *domain.Track {
	return &domain.Track{
		Id:          uuid.New(),
		LibraryId:   libraryId,
		ItemURI:     "https://b.example/tracks/" + uuid.NewString(),
		Title:       "song",
		Artist:      artist,
		AudioURL:    "https://b.example/files/a.mp3",
		MediaType:   "audio/mpeg",
		PublishedAt: published,
		CreatedAt:   time.Now().UTC(),
	}
}

func storeLibrary(t *testing.T, database *DB) *domain.Library {
	t.Helper()
	library := &domain.Library{
		Id:           uuid.New(),
		ActorURI:     "https://b.example/federation/actors/owner",
		Name:         "test",
		PrivacyLevel: domain.PrivacyEveryone,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, database.CreateLibrary(library))
	return library
}

func TestReadTracksNewestFirst(t *testing.T) {
	database := newTestDB(t)
	library := storeLibrary(t, database)

	now := time.Now().UTC()
	oldest := makeTrack(library.Id, "a", now.Add(-2*time.Hour))
	middle := makeTrack(library.Id, "b", now.Add(-time.Hour))
	newest := makeTrack(library.Id, "c", now)

	// insert out of order
	require.NoError(t, database.CreateTrack(middle))
	require.NoError(t, database.CreateTrack(newest))
	require.NoError(t, database.CreateTrack(oldest))

	libraryId := library.Id
	err, tracks := database.ReadTracks(TrackFilter{LibraryId: &libraryId})
	require.NoError(t, err)
	require.Len(t, *tracks, 3)
	assert.Equal(t, newest.ItemURI, (*tracks)[0].ItemURI)
	assert.Equal(t, middle.ItemURI, (*tracks)[1].ItemURI)
	assert.Equal(t, oldest.ItemURI, (*tracks)[2].ItemURI)
}

func TestReadTracksFilters(t *testing.T) {
	database := newTestDB(t)
	library := storeLibrary(t, database)

	now := time.Now().UTC()
	old := makeTrack(library.Id, "miles", now.Add(-48*time.Hour))
	recent := makeTrack(library.Id, "coltrane", now)
	require.NoError(t, database.CreateTrack(old))
	require.NoError(t, database.CreateTrack(recent))

	err, byArtist := database.ReadTracks(TrackFilter{Artist: "miles"})
	require.NoError(t, err)
	require.Len(t, *byArtist, 1)
	assert.Equal(t, old.ItemURI, (*byArtist)[0].ItemURI)

	since := now.Add(-time.Hour)
	err, recentOnly := database.ReadTracks(TrackFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, *recentOnly, 1)
	assert.Equal(t, recent.ItemURI, (*recentOnly)[0].ItemURI)
}

func TestMarkTracksImported(t *testing.T) {
	database := newTestDB(t)
	library := storeLibrary(t, database)

	track := makeTrack(library.Id, "a", time.Now().UTC())
	require.NoError(t, database.CreateTrack(track))

	require.NoError(t, database.MarkTracksImported([]uuid.UUID{track.Id}))

	imported := true
	err, tracks := database.ReadTracks(TrackFilter{Imported: &imported})
	require.NoError(t, err)
	require.Len(t, *tracks, 1)
	assert.True(t, (*tracks)[0].Imported)
}

func TestTrackItemURIIsUnique(t *testing.T) {
	database := newTestDB(t)
	library := storeLibrary(t, database)

	track := makeTrack(library.Id, "a", time.Now().UTC())
	require.NoError(t, database.CreateTrack(track))

	duplicate := makeTrack(library.Id, "a", time.Now().UTC())
	duplicate.ItemURI = track.ItemURI
	assert.Error(t, database.CreateTrack(duplicate))
}
