// Package policy implements the processing stages a builder runs every cycle.
//
// Two policies are provided. Standard drives one multi-channel device:
// collect, calibrate, range-check, data-check, alarm, report and store.
// Group drives several devices that share one configuration block, where
// channel k belongs to member k.
//
// # Collection
//
// Every collection runs the state machine in state.go. A failed attempt is
// retried up to the channel's retry limit. When retries are exhausted a
// channel that never worked is a fault (reported, no escalation) while a
// channel that worked before is degraded; once its fail count passes the
// fail limit the node is restarted through the Restarter.
//
// Validity never travels as an error: stages mark each channel valid,
// invalid or out of range and the data-check stage substitutes sentinel
// values so consumers never see stale readings.
package policy
