// Package pipeline schedules sensors through their processing stages.
//
// A Builder binds one device (or a group of devices) to a typed channel
// configuration and an ordered list of stages. The Director owns every
// builder, initialises their devices once and then sweeps them forever,
// one builder at a time, on a single goroutine.
//
// # Gating
//
// Each Stage may carry an allow predicate. In GateOnce mode the builder
// evaluates one predicate before the first stage and skips the whole cycle
// when it fails; without an explicit builder predicate the first stage's
// predicate is used. In GatePerStage mode every stage checks its own
// predicate and only that stage is skipped.
//
// # Handles
//
// Builders live in the Director's arena and are addressed by Handle.
// Devices that embed sensor.Base remember the handle of the builder that
// drives them, so a stage handler or an API request can get from a device
// back to its typed configuration with ConfigOf.
//
// # Out-of-band work
//
// Director.Do queues a function to run between sweeps on the scheduling
// goroutine. The HTTP API and MQTT command handlers use it so device and
// configuration state is never touched concurrently.
package pipeline
