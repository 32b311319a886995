// Package node is the operator surface of a running sensor node.
//
// A Service answers questions about the configured sensors and performs
// out-of-band work on them: recalibration, consumption reset, low power and
// calibration record edits. Everything that touches a builder's state runs
// on the director's scheduling goroutine through Director.Do, so the HTTP
// API and MQTT command handlers can call a Service from any goroutine.
package node
