package report

import (
	"context"

	"go.uber.org/multierr"
)

// Sink consumes readings.
type Sink interface {
	Write(ctx context.Context, readings []Reading) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, readings []Reading) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, readings []Reading) error {
	return f(ctx, readings)
}

// Fanout writes to every sink and combines their errors. One failing sink
// does not stop the others.
type Fanout []Sink

// Write implements Sink.
func (f Fanout) Write(ctx context.Context, readings []Reading) error {
	var err error
	for _, s := range f {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Write(ctx, readings))
	}
	return err
}

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(context.Context, []Reading) error { return nil })
