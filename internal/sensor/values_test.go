package sensor

import (
	"errors"
	"testing"
)

func TestValues_RawAndValueAreSeparate(t *testing.T) {
	d := newFakeDevice("sht3x_0", 2)
	d.SetRaw(0, 21.5)
	d.SetRaw(1, 48)

	raw, err := Value(d, Raw(1))
	if err != nil {
		t.Fatalf("Value(Raw(1)) error = %v", err)
	}
	if raw != 48 {
		t.Errorf("Value(Raw(1)) = %v, want 48", raw)
	}

	if err := SetValue(d, 1, 50); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	v, _ := Value(d, 1)
	if v != 50 {
		t.Errorf("Value(1) = %v, want 50", v)
	}
	if d.RawValue(1) != 48 {
		t.Errorf("raw overwritten by SetValue: %v", d.RawValue(1))
	}
}

func TestValues_Status(t *testing.T) {
	d := newFakeDevice("d", 1)

	s, err := Status(d, 0)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if s != StatusNone {
		t.Errorf("initial Status() = %v, want %v", s, StatusNone)
	}

	if err := SetStatus(d, 0, StatusOutOfRange); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if s, _ := Status(d, 0); s != StatusOutOfRange {
		t.Errorf("Status() = %v, want %v", s, StatusOutOfRange)
	}
}

func TestValues_Errors(t *testing.T) {
	d := newFakeDevice("d", 2)

	if _, err := Value(d, 5); !errors.Is(err, ErrBadChannel) {
		t.Errorf("Value(5) error = %v, want %v", err, ErrBadChannel)
	}
	if _, err := Value(d, Raw(3)); !errors.Is(err, ErrBadChannel) {
		t.Errorf("Value(Raw(3)) error = %v, want %v", err, ErrBadChannel)
	}
	var wrong int
	if err := Control(d, CmdDataGet, 0, &wrong); !errors.Is(err, ErrBadData) {
		t.Errorf("Control(*int) error = %v, want %v", err, ErrBadData)
	}
	if err := Control(d, CmdDriver, 0, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Control(CmdDriver) error = %v, want %v", err, ErrUnsupported)
	}
}

func TestChannel(t *testing.T) {
	tests := []struct {
		ch    Channel
		raw   bool
		index int
		str   string
	}{
		{0, false, 0, "0"},
		{3, false, 3, "3"},
		{Raw(0), true, 0, "raw(0)"},
		{Raw(2), true, 2, "raw(2)"},
	}
	for _, tt := range tests {
		if tt.ch.IsRaw() != tt.raw || tt.ch.Index() != tt.index || tt.ch.String() != tt.str {
			t.Errorf("Channel(%d) = {raw:%v index:%d str:%q}, want {%v %d %q}",
				uint8(tt.ch), tt.ch.IsRaw(), tt.ch.Index(), tt.ch.String(), tt.raw, tt.index, tt.str)
		}
	}
}
