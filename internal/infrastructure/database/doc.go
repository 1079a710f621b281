// Package database provides SQLite connectivity for the device cache.
//
// The cache holds the parsed processor programming database (areas and
// outputs) so tool queries don't depend on the processor's HTTP endpoint
// being reachable. The data is derived: a refresh rebuilds it wholesale
// from the processor's XML export, so the schema is applied idempotently
// via EnsureSchema rather than through versioned migrations.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/homeworks.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
