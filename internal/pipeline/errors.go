package pipeline

import "errors"

// Domain errors for the pipeline package.
var (
	// ErrNoStages is returned when adding a builder without stages.
	ErrNoStages = errors.New("pipeline: builder has no stages")

	// ErrNoBuilders is returned when initialising a director with no builders.
	ErrNoBuilders = errors.New("pipeline: no builders")

	// ErrNoDevice is returned when a builder has no bound device.
	ErrNoDevice = errors.New("pipeline: builder has no device")

	// ErrInvalidHandle is returned for a handle the director did not issue.
	ErrInvalidHandle = errors.New("pipeline: invalid builder handle")

	// ErrConfigType is returned by ConfigOf when the builder holds a different configuration type.
	ErrConfigType = errors.New("pipeline: configuration type mismatch")

	// ErrStageNotFound is returned by RunStage for an unknown stage name.
	ErrStageNotFound = errors.New("pipeline: stage not found")

	// ErrStopped is returned by Do when the director loop is not running.
	ErrStopped = errors.New("pipeline: director not running")
)
