package policy

import "context"

// CalibrationRecord is the stored calibration of one channel. Offset is in
// channel units: with Unit 10 an offset of 5 adds 0.5.
type CalibrationRecord struct {
	Enabled bool
	Offset  int16
}

// CalibrationStore reads calibration records by key. A key with no record
// returns ErrCalibrationNotFound.
type CalibrationStore interface {
	Calibration(ctx context.Context, key uint32) (CalibrationRecord, error)
}

// Restarter performs the last-resort restart of the node. Restart is not
// expected to return.
type Restarter interface {
	Restart()
}

// Recorder receives collection events for metrics.
type Recorder interface {
	Collected(sensor string, counted bool)
	Retried(sensor string)
	Faulted(sensor string)
	Failed(sensor string)
	Restarted(sensor string)
	OutOfRange(sensor string, channel int)
}

type noopRecorder struct{}

func (noopRecorder) Collected(string, bool) {}
func (noopRecorder) Retried(string)         {}
func (noopRecorder) Faulted(string)         {}
func (noopRecorder) Failed(string)          {}
func (noopRecorder) Restarted(string)       {}
func (noopRecorder) OutOfRange(string, int) {}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
