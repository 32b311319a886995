package sensor

import "fmt"

// Values holds the per-channel status, processed value and raw reading of a
// device. Drivers embed it and route the generic commands through Control.
type Values struct {
	status []DataStatus
	value  []float64
	raw    []float64
}

// NewValues returns storage for n channels, all marked StatusNone.
func NewValues(n int) Values {
	if n > MaxChannels {
		n = MaxChannels
	}
	v := Values{
		status: make([]DataStatus, n),
		value:  make([]float64, n),
		raw:    make([]float64, n),
	}
	for i := range v.status {
		v.status[i] = StatusNone
	}
	return v
}

// Channels returns the number of logical channels.
func (v *Values) Channels() int { return len(v.status) }

// SetRaw stores a fresh reading for channel i. Drivers call it from Collect.
func (v *Values) SetRaw(i int, x float64) {
	if i >= 0 && i < len(v.raw) {
		v.raw[i] = x
	}
}

// RawValue returns the last raw reading of channel i.
func (v *Values) RawValue(i int) float64 {
	if i < 0 || i >= len(v.raw) {
		return 0
	}
	return v.raw[i]
}

// Control implements CmdStatusSet, CmdStatusGet, CmdDataSet and CmdDataGet.
// Any other command returns ErrUnsupported so drivers can fall through to it.
func (v *Values) Control(cmd Command, ch Channel, data any) error {
	i := ch.Index()
	if i >= len(v.status) {
		return fmt.Errorf("%w: %s", ErrBadChannel, ch)
	}

	switch cmd {
	case CmdStatusSet:
		s, ok := data.(*DataStatus)
		if !ok || s == nil {
			return ErrBadData
		}
		v.status[i] = *s
	case CmdStatusGet:
		s, ok := data.(*DataStatus)
		if !ok || s == nil {
			return ErrBadData
		}
		*s = v.status[i]
	case CmdDataSet:
		f, ok := data.(*float64)
		if !ok || f == nil {
			return ErrBadData
		}
		if ch.IsRaw() {
			v.raw[i] = *f
		} else {
			v.value[i] = *f
		}
	case CmdDataGet:
		f, ok := data.(*float64)
		if !ok || f == nil {
			return ErrBadData
		}
		if ch.IsRaw() {
			*f = v.raw[i]
		} else {
			*f = v.value[i]
		}
	default:
		return ErrUnsupported
	}
	return nil
}
