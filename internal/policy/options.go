package policy

import (
	"github.com/benbjohnson/clock"

	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

// RawMode selects where the collect stage takes each channel's value from.
type RawMode uint8

const (
	// RawBroadcast copies channel 0's raw reading to every channel. It suits
	// devices whose channels are derivations of one physical reading.
	RawBroadcast RawMode = iota
	// RawPerChannel copies each channel's own raw reading.
	RawPerChannel
)

// ParseRawMode parses "broadcast" or "per_channel". Empty means broadcast.
func ParseRawMode(s string) (RawMode, bool) {
	switch s {
	case "", "broadcast":
		return RawBroadcast, true
	case "per_channel":
		return RawPerChannel, true
	}
	return RawBroadcast, false
}

// Options are the collaborators shared by the stages of a policy.
// Nil collaborators are replaced with no-op implementations.
type Options struct {
	// Node and Boot identify the node and the current boot in readings.
	Node string
	Boot string

	Logger      pipeline.Logger
	Calibration CalibrationStore
	Restarter   Restarter
	Recorder    Recorder

	// Reporter receives readings from the report stage.
	Reporter report.Sink
	// Archiver receives readings from the store stage.
	Archiver report.Sink

	// CollectAllow gates the collect stage. In GateOnce mode it gates the
	// whole cycle.
	CollectAllow pipeline.AllowFunc[ChannelConfig]

	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Recorder == nil {
		o.Recorder = noopRecorder{}
	}
	if o.Reporter == nil {
		o.Reporter = report.Discard
	}
	if o.Archiver == nil {
		o.Archiver = report.Discard
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}
