package mydb

import (
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Just included for the driver, for now
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var openDB = sql.Open
var withInstance = sqlite3.WithInstance
var migrateInstance = migrate.NewWithInstance

// getConnStr returns a DSN for a given database path
func getConnStr(dbPath string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=true", dbPath)
}

// OpenDB opens and returns a new connection to the run catalog, applying any
// pending migrations first
func OpenDB(dbPath string) *sql.DB {
	connStr := getConnStr(dbPath)
	db, err := openDB("sqlite3", connStr)
	if err != nil {
		panic(err)
	}

	err = pingDB(db)
	if err != nil {
		panic(err)
	}

	checkMigration(db)

	return db
}

// DeleteDB removes the catalog file, primarily for tests
func DeleteDB(dbPath string) {
	_ = os.Remove(dbPath)
}

// Pings a DB for liveliness - variable for mocking in tests
var pingDB = func(db *sql.DB) error {
	return db.Ping()
}

// Check database for any needed migrations
var checkMigration = func(db *sql.DB) {
	driver, err := withInstance(db, &sqlite3.Config{})
	if err != nil {
		panic(err)
	}

	migrationSource, err := getMigrations()
	if err != nil {
		panic(err)
	}

	migration, err := migrateInstance("iofs", migrationSource, "catalog", driver)
	if err != nil {
		panic(err)
	}
	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		panic(err)
	}
}

// Migrations ship inside the binary so the catalog works from any directory
var getMigrations = func() (source.Driver, error) {
	return iofs.New(migrationFiles, "migrations")
}
