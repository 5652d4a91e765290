package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nocturnefm/nocturne/domain"
)

const (
	sqlInsertLibrary = `INSERT INTO libraries(id, actor_uri, name, summary, privacy_level, uploads_count, federation_enabled, auto_import, download_files, followed_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectLibraryColumns = `id, actor_uri, name, summary, privacy_level, uploads_count, federation_enabled, auto_import, download_files, followed_url, created_at`
	sqlUpdateLibrary        = `UPDATE libraries SET name = ?, summary = ?, privacy_level = ?, uploads_count = ?, federation_enabled = ?, auto_import = ?, download_files = ? WHERE id = ?`
)

func (db *DB) CreateLibrary(l *domain.Library) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlInsertLibrary,
			l.Id.String(),
			l.ActorURI,
			l.Name,
			l.Summary,
			l.PrivacyLevel,
			l.UploadsCount,
			l.FederationEnabled,
			l.AutoImport,
			l.DownloadFiles,
			l.FollowedURL,
			l.CreatedAt,
		)
		return err
	})
}

func (db *DB) UpdateLibrary(l *domain.Library) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlUpdateLibrary,
			l.Name,
			l.Summary,
			l.PrivacyLevel,
			l.UploadsCount,
			l.FederationEnabled,
			l.AutoImport,
			l.DownloadFiles,
			l.Id.String(),
		)
		return err
	})
}

func (db *DB) ReadLibraryById(id uuid.UUID) (error, *domain.Library) {
	row := db.db.QueryRow(`SELECT `+sqlSelectLibraryColumns+` FROM libraries WHERE id = ?`, id.String())
	return scanLibrary(row)
}

func (db *DB) ReadLibrariesByActorURI(actorURI string) (error, *[]domain.Library) {
	rows, err := db.db.Query(`SELECT `+sqlSelectLibraryColumns+` FROM libraries WHERE actor_uri = ? ORDER BY created_at DESC`, actorURI)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var libraries []domain.Library
	for rows.Next() {
		var l domain.Library
		var idStr string
		if err := rows.Scan(&idStr, &l.ActorURI, &l.Name, &l.Summary, &l.PrivacyLevel, &l.UploadsCount, &l.FederationEnabled, &l.AutoImport, &l.DownloadFiles, &l.FollowedURL, &l.CreatedAt); err != nil {
			return err, &libraries
		}
		l.Id, _ = uuid.Parse(idStr)
		libraries = append(libraries, l)
	}
	if err = rows.Err(); err != nil {
		return err, &libraries
	}

	return nil, &libraries
}

func (db *DB) ReadAllLibraries() (error, *[]domain.Library) {
	rows, err := db.db.Query(`SELECT ` + sqlSelectLibraryColumns + ` FROM libraries ORDER BY created_at DESC`)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var libraries []domain.Library
	for rows.Next() {
		var l domain.Library
		var idStr string
		if err := rows.Scan(&idStr, &l.ActorURI, &l.Name, &l.Summary, &l.PrivacyLevel, &l.UploadsCount, &l.FederationEnabled, &l.AutoImport, &l.DownloadFiles, &l.FollowedURL, &l.CreatedAt); err != nil {
			return err, &libraries
		}
		l.Id, _ = uuid.Parse(idStr)
		libraries = append(libraries, l)
	}
	if err = rows.Err(); err != nil {
		return err, &libraries
	}

	return nil, &libraries
}

func scanLibrary(row *sql.Row) (error, *domain.Library) {
	var l domain.Library
	var idStr string
	err := row.Scan(
		&idStr,
		&l.ActorURI,
		&l.Name,
		&l.Summary,
		&l.PrivacyLevel,
		&l.UploadsCount,
		&l.FederationEnabled,
		&l.AutoImport,
		&l.DownloadFiles,
		&l.FollowedURL,
		&l.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	l.Id, _ = uuid.Parse(idStr)
	return nil, &l
}

const (
	sqlInsertTrack = `INSERT INTO tracks(id, library_id, item_uri, title, artist, album, audio_url, media_type, size, bitrate, duration, imported, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectTrackColumns = `id, library_id, item_uri, title, artist, album, audio_url, media_type, size, bitrate, duration, imported, published_at, created_at`
)

func (db *DB) CreateTrack(t *domain.Track) error {
	return db.wrapTransaction(func(tx *Tx) error {
		_, err := tx.Exec(sqlInsertTrack,
			t.Id.String(),
			t.LibraryId.String(),
			t.ItemURI,
			t.Title,
			t.Artist,
			t.Album,
			t.AudioURL,
			t.MediaType,
			t.Size,
			t.Bitrate,
			t.Duration,
			t.Imported,
			t.PublishedAt,
			t.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadTrackByItemURI(uri string) (error, *domain.Track) {
	row := db.db.QueryRow(`SELECT `+sqlSelectTrackColumns+` FROM tracks WHERE item_uri = ?`, uri)
	return scanTrack(row)
}

// TrackFilter narrows track listings. Zero values mean "no filter".
type TrackFilter struct {
	LibraryId *uuid.UUID
	Imported  *bool
	Artist    string
	Since     *time.Time
}

// ReadTracks lists tracks most-recent-first. The descending order is a
// wire-format invariant: remote scanners rely on it to stop early.
func (db *DB) ReadTracks(filter TrackFilter) (error, *[]domain.Track) {
	query := `SELECT ` + sqlSelectTrackColumns + ` FROM tracks WHERE 1=1`
	var args []interface{}
	if filter.LibraryId != nil {
		query += ` AND library_id = ?`
		args = append(args, filter.LibraryId.String())
	}
	if filter.Imported != nil {
		query += ` AND imported = ?`
		args = append(args, *filter.Imported)
	}
	if filter.Artist != "" {
		query += ` AND artist = ?`
		args = append(args, filter.Artist)
	}
	if filter.Since != nil {
		query += ` AND published_at >= ?`
		args = append(args, *filter.Since)
	}
	query += ` ORDER BY published_at DESC`

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var tracks []domain.Track
	for rows.Next() {
		var t domain.Track
		var idStr, libStr string
		if err := rows.Scan(&idStr, &libStr, &t.ItemURI, &t.Title, &t.Artist, &t.Album, &t.AudioURL, &t.MediaType, &t.Size, &t.Bitrate, &t.Duration, &t.Imported, &t.PublishedAt, &t.CreatedAt); err != nil {
			return err, &tracks
		}
		t.Id, _ = uuid.Parse(idStr)
		t.LibraryId, _ = uuid.Parse(libStr)
		tracks = append(tracks, t)
	}
	if err = rows.Err(); err != nil {
		return err, &tracks
	}

	return nil, &tracks
}

func (db *DB) MarkTracksImported(ids []uuid.UUID) error {
	return db.wrapTransaction(func(tx *Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(`UPDATE tracks SET imported = 1 WHERE id = ?`, id.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanTrack(row *sql.Row) (error, *domain.Track) {
	var t domain.Track
	var idStr, libStr string
	err := row.Scan(
		&idStr,
		&libStr,
		&t.ItemURI,
		&t.Title,
		&t.Artist,
		&t.Album,
		&t.AudioURL,
		&t.MediaType,
		&t.Size,
		&t.Bitrate,
		&t.Duration,
		&t.Imported,
		&t.PublishedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	t.Id, _ = uuid.Parse(idStr)
	t.LibraryId, _ = uuid.Parse(libStr)
	return nil, &t
}
