// Package sensor provides the device abstraction for the sensor node.
//
// Every physical probe on the node (humidity/temperature combo sensors,
// 1-Wire thermal probes, ADC-backed resistance probes, door contacts) is
// driven through the same Device interface. Collect and Control are
// mandatory; Init, Open, Close and LowPower are optional capabilities that
// a driver opts into by implementing the matching interface.
//
// # Modules
//
// Several devices can share one physical resource, such as an ADC sitting on
// an I2C bus. A Module coordinates them: it remembers the last status that
// was requested (open, close, read, ...) and only runs its own hook when the
// requested status differs from the current one. Back-to-back calls from the
// member devices therefore initialise the bus once.
//
//	┌──────────┐  ┌──────────┐
//	│ pt100_0  │  │ pt100_1  │   member devices
//	└────┬─────┘  └────┬─────┘
//	     └──────┬──────┘
//	       ┌────▼────┐
//	       │ ads1015 │         Module (status: CLOSE → OPEN → READ → CLOSE)
//	       └─────────┘
//
// # Channels
//
// Control addresses per-channel slots. Channel i holds the processed value of
// logical channel i; Raw(i) addresses the unprocessed reading of the same
// channel and counts down from RawBase.
//
// # Thread Safety
//
// Devices, modules and the registry are owned by the single scheduling
// goroutine and are not safe for concurrent use. The only concurrent writer is
// a driver's interrupt handler, which drivers must hand off themselves.
package sensor
