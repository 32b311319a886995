// Package api provides the HTTP API and WebSocket server of a sensor node.
//
// Endpoints (all under /api/v1):
//
//	GET    /health                          liveness and dependency status
//	GET    /system                          uptime, runtime and broker/archive counters
//	GET    /sensors                         every sensor with its channels
//	GET    /sensors/{name}                  one sensor
//	GET    /sensors/{name}/readings         latest reported readings
//	GET    /sensors/{name}/consumption      collection count and energy
//	DELETE /sensors/{name}/consumption      reset the collection count     (JWT)
//	POST   /sensors/{name}/recalibrate      re-run the calibrate stage     (JWT)
//	POST   /sensors/{name}/lowpower         {"enter": bool}                (JWT)
//	GET    /calibration/{key}               calibration record
//	PUT    /calibration/{key}               {"enabled", "offset", "note"}  (JWT)
//	GET    /ws                              live readings and alarms
//
// Prometheus metrics are served on /metrics.
//
// Mutating routes require an HS256 bearer token signed with
// security.jwt.secret.
package api
