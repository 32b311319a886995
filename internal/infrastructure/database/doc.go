// Package database provides the SQLite store of the sensor node.
//
// The node keeps two kinds of state on disk: calibration records, which
// must survive reboots, and a rolling history of readings. Both live in one
// database opened in WAL mode so the HTTP API can read while the pipeline
// writes.
//
// Migrations are additive .up.sql/.down.sql pairs named
// YYYYMMDD_HHMMSS_description, embedded by the migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
