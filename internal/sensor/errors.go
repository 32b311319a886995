package sensor

import "errors"

// Domain errors for the sensor package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, sensor.ErrUnsupported) {
//	    // the device does not implement the operation
//	}
var (
	// ErrNilDevice is returned when an operation is given a nil device.
	ErrNilDevice = errors.New("sensor: nil device")

	// ErrUnnamed is returned when registering a device with an empty name.
	ErrUnnamed = errors.New("sensor: device has no name")

	// ErrNotFound is returned when no registered device has the requested name.
	ErrNotFound = errors.New("sensor: not found")

	// ErrUnsupported is returned when a device does not implement the requested operation.
	ErrUnsupported = errors.New("sensor: unsupported operation")

	// ErrModuleFull is returned when attaching more than MaxModuleMembers devices to a module.
	ErrModuleFull = errors.New("sensor: module is full")

	// ErrBadChannel is returned by Control for a channel the device does not have.
	ErrBadChannel = errors.New("sensor: invalid channel")

	// ErrBadData is returned by Control when the data argument has the wrong type.
	ErrBadData = errors.New("sensor: invalid control data")
)
