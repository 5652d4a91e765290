package db

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nocturnefm/nocturne/util"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

// Open opens a sqlite database at the given path and runs the schema
// migrations. Tests pass ":memory:".
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// a second pooled connection would get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	d := &DB{db: sqlDB}
	if err := d.RunMigrations(); err != nil {
		return nil, err
	}
	return d, nil
}

func GetDB() *DB {
	dbOnce.Do(func() {
		db, err := sql.Open("sqlite", util.ResolveFilePath("database.db"))
		if err != nil {
			panic(err)
		}

		// Configure connection pool for concurrent access
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Warnf("Failed to enable WAL mode: %v", err)
		} else {
			log.Infof("Database journal mode: %s", journalMode)
		}

		// Optimize PRAGMAs for the federation workload
		db.Exec("PRAGMA synchronous = NORMAL")
		db.Exec("PRAGMA cache_size = -64000")
		db.Exec("PRAGMA temp_store = MEMORY")
		db.Exec("PRAGMA busy_timeout = 5000")
		db.Exec("PRAGMA foreign_keys = ON")

		dbInstance = &DB{db: db}

		if err := dbInstance.RunMigrations(); err != nil {
			panic(err)
		}
	})

	return dbInstance
}

// Tx wraps a sql transaction with a commit callback queue: callbacks
// registered with OnCommit run only after a successful commit and are
// discarded when the transaction fails.
type Tx struct {
	*sql.Tx
	hooks []func()
}

// OnCommit registers a no-argument action to run after commit. Actions
// run in registration order, outside the transaction.
func (t *Tx) OnCommit(f func()) {
	t.hooks = append(t.hooks, f)
}

// wrapTransaction runs the given function within a transaction and drains
// the commit callback queue once the commit is durable.
func (db *DB) wrapTransaction(f func(tx *Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Errorf("error starting transaction: %s", err)
		return err
	}
	tx := &Tx{Tx: sqlTx}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				tx.hooks = nil
				continue
			}
			sqlTx.Rollback()
			log.Errorf("error in transaction: %s", err)
			return err
		}
		err = sqlTx.Commit()
		if err != nil {
			log.Errorf("error committing transaction: %s", err)
			return err
		}
		break
	}
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

// WrapTransaction exposes the commit-hook transaction boundary to callers
// that need to couple a state change with a deferred action.
func (db *DB) WrapTransaction(f func(tx *Tx) error) error {
	return db.wrapTransaction(f)
}
