package policy

import "github.com/nerrad567/gray-logic-sensornode/internal/sensor"

// Compiled-in defaults applied by Configure when defaults are requested.
const (
	DefaultRetryLimit = 2
	DefaultFailLimit  = 3
	DefaultUnit       = 1
)

// Sentinel values written by the data-check stage.
const (
	ErrorValue      float64 = 0xFFFFFFFF
	OutOfRangeValue float64 = 0xFFFFFFFD
)

// RangeCheck is the valid window of a channel, in whole units.
type RangeCheck struct {
	Min       int16
	Max       int16
	FailCount uint32
}

// CollectState tracks collection health of a channel.
type CollectState struct {
	// Normal is false until the first fully successful collection.
	Normal    bool
	ErrCount  int
	FailCount int
	// Count is the lifetime number of counted collection attempts.
	Count uint32
}

// Sentinels are the values substituted for invalid and out-of-range data.
// Zero fields fall back to ErrorValue and OutOfRangeValue.
type Sentinels struct {
	Invalid    float64
	OutOfRange float64
}

// Hooks are the optional per-channel callbacks. On multi-channel devices only
// channel 0's AllowCount, Fault and Fail hooks are consulted.
type Hooks struct {
	// AllowCount decides whether this collection counts towards Count.
	AllowCount func(cfg []ChannelConfig) bool
	// Fault replaces the default logging when a never-working device fails.
	Fault func(dev sensor.Device, cfg []ChannelConfig)
	// Fail replaces fail counting and restart for a previously working device.
	Fail func(dev sensor.Device, cfg []ChannelConfig)
	// Alarm is called by the alarm stage with the channel's current value.
	Alarm func(dev sensor.Device, channel int, value float64)
}

// ChannelConfig configures one logical measurement channel.
type ChannelConfig struct {
	Name string
	// Power is the energy drawn by one collection, in mWs.
	Power float64
	// Unit scales values to the integer resolution used by range checks and
	// calibration offsets: 10 means tenths.
	Unit int
	// CalibrationKey addresses the channel's record in the calibration store.
	// Zero means no calibration.
	CalibrationKey uint32
	RetryLimit     int
	FailLimit      int
	Check          RangeCheck
	Collect        CollectState
	Sentinels      Sentinels
	Hooks          Hooks
}

// ApplyDefaults resets thresholds, unit and health to their defaults.
func (c *ChannelConfig) ApplyDefaults() {
	c.RetryLimit = DefaultRetryLimit
	c.FailLimit = DefaultFailLimit
	c.Collect.Normal = false
	c.Unit = DefaultUnit
}

func (c *ChannelConfig) unit() float64 {
	if c.Unit <= 0 {
		return DefaultUnit
	}
	return float64(c.Unit)
}

func (c *ChannelConfig) invalidValue() float64 {
	if c.Sentinels.Invalid != 0 {
		return c.Sentinels.Invalid
	}
	return ErrorValue
}

func (c *ChannelConfig) outOfRangeValue() float64 {
	if c.Sentinels.OutOfRange != 0 {
		return c.Sentinels.OutOfRange
	}
	return OutOfRangeValue
}

// InRange reports whether value lies inside the channel window. Both value
// and bounds are scaled by Unit and the value is truncated to an integer
// before comparison; the bounds are inclusive.
func (c *ChannelConfig) InRange(value float64) bool {
	u := c.unit()
	scaled := int64(value * u)
	return int64(float64(c.Check.Min)*u) <= scaled && scaled <= int64(float64(c.Check.Max)*u)
}

// Consumption returns the counted collections and the energy they used.
func (c *ChannelConfig) Consumption() (count uint32, energy float64) {
	return c.Collect.Count, float64(c.Collect.Count) * c.Power
}
