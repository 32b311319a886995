package pipeline

import "time"

// Logger defines the logging interface used by builders and the director.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives timing for every executed stage and every sweep.
type Observer interface {
	StageDone(builder, stage string, elapsed time.Duration)
	SweepDone(elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) StageDone(string, string, time.Duration) {}
func (noopObserver) SweepDone(time.Duration)                 {}
