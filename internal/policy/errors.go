package policy

import "errors"

// Domain errors for the policy package.
var (
	// ErrNoChannels is returned when configuring a builder without channels.
	ErrNoChannels = errors.New("policy: no channels configured")

	// ErrUnknownStage is returned for a stage name the policy does not provide.
	ErrUnknownStage = errors.New("policy: unknown stage")

	// ErrCalibrationNotFound is returned by a CalibrationStore with no record for a key.
	ErrCalibrationNotFound = errors.New("policy: calibration record not found")

	// ErrNoCalibrationKey is returned when a channel has no calibration key.
	ErrNoCalibrationKey = errors.New("policy: channel has no calibration key")
)
