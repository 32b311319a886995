// Package calibration persists per-channel calibration offsets in SQLite.
//
// Records are addressed by the calibration key configured on a channel. The
// calibrate stage reads them through policy.CalibrationStore; the HTTP API
// edits them with Set and Delete.
package calibration
