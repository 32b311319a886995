// Package report carries channel readings from the pipeline to the outside
// world.
//
// The report and store stages hand every reading to a Sink. Sinks are
// composed with Fanout; the node wires MQTT publishing, the live Board used
// by the HTTP API and the WebSocket hub to the report stage, and InfluxDB and
// the SQLite history to the store stage.
package report
