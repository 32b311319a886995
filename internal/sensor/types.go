package sensor

import "fmt"

// DataStatus is the validity of one channel's current value.
type DataStatus uint8

// Channel data statuses.
const (
	StatusInvalid    DataStatus = 0
	StatusValid      DataStatus = 1
	StatusOutOfRange DataStatus = 2
	StatusNone       DataStatus = 0xFF
)

// String returns the status name used in logs and reports.
func (s DataStatus) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusValid:
		return "valid"
	case StatusOutOfRange:
		return "out_of_range"
	case StatusNone:
		return "none"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Command is a Control command.
type Command uint8

// Generic control commands every driver understands. Drivers may define
// their own commands starting at CmdDriver.
const (
	CmdStatusSet Command = iota + 1 // data: *DataStatus
	CmdStatusGet                    // data: *DataStatus
	CmdDataSet                      // data: *float64
	CmdDataGet                      // data: *float64
	CmdDriver    Command = 0x80
)

// Channel addresses a value slot on a device.
type Channel uint8

// RawBase is the channel index of the raw reading of logical channel 0.
// The raw reading of channel i lives at RawBase - i.
const RawBase Channel = 0xFF

// MaxChannels bounds the number of logical channels a device can expose,
// which keeps value and raw indexes from overlapping.
const MaxChannels = 16

// Raw returns the raw-reading channel of logical channel i.
func Raw(i int) Channel {
	return RawBase - Channel(i)
}

// IsRaw reports whether c addresses a raw reading.
func (c Channel) IsRaw() bool {
	return c > RawBase-MaxChannels
}

// Index returns the logical channel index c refers to, raw or not.
func (c Channel) Index() int {
	if c.IsRaw() {
		return int(RawBase - c)
	}
	return int(c)
}

// String renders the channel as "3" or "raw(3)".
func (c Channel) String() string {
	if c.IsRaw() {
		return fmt.Sprintf("raw(%d)", c.Index())
	}
	return fmt.Sprintf("%d", int(c))
}
