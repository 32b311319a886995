package calibration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
	_ "github.com/nerrad567/gray-logic-sensornode/migrations"
)

type fixedDevice struct {
	sensor.Base
	sensor.Values
	reading float64
}

func (d *fixedDevice) Collect(context.Context) error {
	d.SetRaw(0, d.reading)
	return nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "node.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db.DB)
}

func TestStore_SetAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, Entry{Key: 2, Enabled: true, Offset: -7, Note: "bench"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	rec, err := s.Calibration(ctx, 2)
	if err != nil {
		t.Fatalf("Calibration() error = %v", err)
	}
	if !rec.Enabled || rec.Offset != -7 {
		t.Errorf("Calibration() = %+v, want enabled offset -7", rec)
	}

	if err := s.Set(ctx, Entry{Key: 2, Enabled: false, Offset: 3}); err != nil {
		t.Fatalf("Set() update error = %v", err)
	}
	e, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Enabled || e.Offset != 3 || e.Note != "" {
		t.Errorf("Get() = %+v after update", e)
	}
	if e.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Calibration(ctx, 9); !errors.Is(err, policy.ErrCalibrationNotFound) {
		t.Errorf("Calibration() error = %v, want %v", err, policy.ErrCalibrationNotFound)
	}
	if err := s.Delete(ctx, 9); !errors.Is(err, policy.ErrCalibrationNotFound) {
		t.Errorf("Delete() error = %v, want %v", err, policy.ErrCalibrationNotFound)
	}
}

func TestStore_RejectsZeroKey(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set(context.Background(), Entry{Offset: 1}); !errors.Is(err, policy.ErrNoCalibrationKey) {
		t.Errorf("Set() error = %v, want %v", err, policy.ErrNoCalibrationKey)
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []uint32{3, 1, 2} {
		if err := s.Set(ctx, Entry{Key: k, Enabled: true, Offset: int16(k)}); err != nil {
			t.Fatalf("Set(%d) error = %v", k, err)
		}
	}
	if err := s.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Key != 1 || entries[1].Key != 3 {
		t.Errorf("List() = %+v, want keys [1 3]", entries)
	}
}

func TestStore_DrivesCalibrateStage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Set(ctx, Entry{Key: 1, Enabled: true, Offset: 5}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	dev := &fixedDevice{Base: sensor.NewBase("sht3x_0"), Values: sensor.NewValues(1), reading: 21.0}
	cfg := []policy.ChannelConfig{{CalibrationKey: 1}}
	cfg[0].ApplyDefaults()
	cfg[0].Unit = 10

	p := policy.NewStandard(policy.Options{Calibration: s}, policy.RawBroadcast)
	p.Collect(ctx, dev, cfg)
	p.Calibrate(ctx, dev, cfg)

	v, _ := sensor.Value(dev, 0)
	if v != 21.5 {
		t.Errorf("calibrated value = %v, want 21.5", v)
	}
}
