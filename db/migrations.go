package db

import (
	"github.com/charmbracelet/log"
)

const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT NOT NULL,
		outbox_uri TEXT,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT DEFAULT '',
		system INTEGER DEFAULT 0,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_actor_uri ON actors(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_actors_domain ON actors(domain);
	`

	sqlCreateLibrariesTable = `CREATE TABLE IF NOT EXISTS libraries (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		name TEXT NOT NULL,
		summary TEXT,
		privacy_level TEXT DEFAULT 'everyone',
		uploads_count INTEGER DEFAULT 0,
		federation_enabled INTEGER DEFAULT 1,
		auto_import INTEGER DEFAULT 0,
		download_files INTEGER DEFAULT 0,
		followed_url TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateLibrariesIndices = `
		CREATE INDEX IF NOT EXISTS idx_libraries_actor_uri ON libraries(actor_uri);
	`

	sqlCreateTracksTable = `CREATE TABLE IF NOT EXISTS tracks (
		id TEXT NOT NULL PRIMARY KEY,
		library_id TEXT NOT NULL,
		item_uri TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		artist TEXT,
		album TEXT,
		audio_url TEXT,
		media_type TEXT,
		size INTEGER DEFAULT 0,
		bitrate INTEGER DEFAULT 0,
		duration INTEGER DEFAULT 0,
		imported INTEGER DEFAULT 0,
		published_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateTracksIndices = `
		CREATE INDEX IF NOT EXISTS idx_tracks_library_id ON tracks(library_id);
		CREATE INDEX IF NOT EXISTS idx_tracks_published_at ON tracks(published_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tracks_imported ON tracks(imported);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		target_uri TEXT NOT NULL,
		uri TEXT NOT NULL,
		approved INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_uri, target_uri)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_actor_uri ON follows(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_follows_target_uri ON follows(target_uri);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
	`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		processed INTEGER DEFAULT 0,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_uri ON activities(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC);
	`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// RunMigrations executes all database migrations.
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *Tx) error {
		tables := []struct {
			name    string
			create  string
			indices string
		}{
			{"actors", sqlCreateActorsTable, sqlCreateActorsIndices},
			{"libraries", sqlCreateLibrariesTable, sqlCreateLibrariesIndices},
			{"tracks", sqlCreateTracksTable, sqlCreateTracksIndices},
			{"follows", sqlCreateFollowsTable, sqlCreateFollowsIndices},
			{"activities", sqlCreateActivitiesTable, sqlCreateActivitiesIndices},
			{"delivery_queue", sqlCreateDeliveryQueueTable, sqlCreateDeliveryQueueIndices},
		}

		for _, table := range tables {
			if _, err := tx.Exec(table.create); err != nil {
				log.Errorf("Error creating table %s: %v", table.name, err)
				return err
			}
			if _, err := tx.Exec(table.indices); err != nil {
				log.Warnf("Failed to create %s indices: %v", table.name, err)
			}
		}

		return nil
	})
}
