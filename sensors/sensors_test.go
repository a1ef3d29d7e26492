package sensors

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
)

const Tolerance = 1e-6

func notSmall(x float64) bool {
	return math.Abs(x) > Tolerance
}

// scriptedReader replays fixed samples.
type scriptedReader struct {
	data []IMUData
	i    int
	err  error
}

func (r *scriptedReader) Read() (*IMUData, error) {
	if r.err != nil {
		return nil, r.err
	}
	d := r.data[r.i%len(r.data)]
	r.i++
	return &d, nil
}

func (r *scriptedReader) Close() error { return nil }

func TestCalDataSaveLoad(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "cal.json")
	d := IMUCalData{A01: 0.01, A02: -0.02, A03: 0.03, G01: 1.5, G02: -2.5, G03: 0.25, N: 100}
	if err := d.Save(fn); err != nil {
		t.Fatal(err)
	}
	var e IMUCalData
	if err := e.Load(fn); err != nil {
		t.Fatal(err)
	}
	if e != d {
		t.Errorf("loaded %+v, want %+v", e, d)
	}
	e.Reset()
	if e != (IMUCalData{}) {
		t.Error("reset left biases behind")
	}
	if err := e.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}

func TestMountValidation(t *testing.T) {
	bad := [][][]float64{
		{{1, 0, 0}, {0, 1, 0}},              // Too few rows
		{{1, 0}, {0, 1, 0}, {0, 0, 1}},      // Short row
		{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}},  // Reflection
		{{2, 0, 0}, {0, 0.5, 0}, {0, 0, 1}}, // Det 1 but not orthonormal
		{{1, 0, 0}, {0, 1, 0}, {0, 0, 0}},   // Singular
	}
	for i, rows := range bad {
		if _, err := NewMount(rows); err == nil {
			t.Errorf("%d: invalid mount accepted", i)
		}
	}
}

func TestMountRotate(t *testing.T) {
	// Sensor mounted upside down about the nose axis
	m, err := NewMount([][]float64{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}})
	if err != nil {
		t.Fatal(err)
	}
	y1, y2, y3 := m.Rotate(0.1, 0.2, -1)
	if notSmall(y1-0.1) || notSmall(y2+0.2) || notSmall(y3-1) {
		t.Errorf("got %f,%f,%f", y1, y2, y3)
	}

	y1, y2, y3 = IdentityMount().Rotate(1, 2, 3)
	if notSmall(y1-1) || notSmall(y2-2) || notSmall(y3-3) {
		t.Errorf("identity mount moved the vector to %f,%f,%f", y1, y2, y3)
	}
}

func TestCorrectedReader(t *testing.T) {
	r := &scriptedReader{data: []IMUData{{G1: 1, G2: 2, G3: 3, A1: 0.1, A2: 0.2, A3: -0.9, Temp: 20}}}
	m, _ := NewMount([][]float64{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}})
	c := NewCorrectedReader(r, IMUCalData{G01: 1, A01: 0.1, A03: 0.1}, m)
	d, err := c.Read()
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(d.G1) || notSmall(d.G2+2) || notSmall(d.G3+3) ||
		notSmall(d.A1) || notSmall(d.A2+0.2) || notSmall(d.A3-1) || d.Temp != 20 {
		t.Errorf("corrected sample %+v", d)
	}

	r.err = errors.New("bus error")
	if _, err := c.Read(); err == nil {
		t.Error("read error was swallowed")
	}
}

func TestCalibrate(t *testing.T) {
	r := &scriptedReader{data: []IMUData{
		{G1: 0.9, G2: -2.1, G3: 0.4, A1: 0.02, A2: -0.01, A3: 1.03},
		{G1: 1.1, G2: -1.9, G3: 0.6, A1: 0.04, A2: -0.03, A3: 1.01},
	}}
	cal, err := Calibrate(r, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(cal.G01-1) || notSmall(cal.G02+2) || notSmall(cal.G03-0.5) ||
		notSmall(cal.A01-0.03) || notSmall(cal.A02+0.02) || notSmall(cal.A03-0.02) || cal.N != 100 {
		t.Errorf("calibration %+v", cal)
	}
}

func TestCalibrateRejects(t *testing.T) {
	moving := &scriptedReader{data: []IMUData{{G1: 50, A3: 1}, {G1: -50, A3: 1}}}
	if _, err := Calibrate(moving, 50, 0); err == nil {
		t.Error("calibration accepted a moving sensor")
	}
	tilted := &scriptedReader{data: []IMUData{{A1: 1}}}
	if _, err := Calibrate(tilted, 50, 0); err == nil {
		t.Error("calibration accepted a sensor on its side")
	}
	broken := &scriptedReader{err: errors.New("nack")}
	if _, err := Calibrate(broken, 50, 0); err == nil {
		t.Error("calibration ignored read errors")
	}
	if _, err := Calibrate(moving, 1, 0); err == nil {
		t.Error("calibration accepted a single sample")
	}
}

func TestSimIMU(t *testing.T) {
	s := NewSimIMU(1)
	t0 := time.Unix(0, 0)
	now := t0
	s.now = func() time.Time { return now }

	d, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(d.A1) || notSmall(d.A2) || notSmall(d.A3-1) {
		t.Errorf("level sim reads %f,%f,%f", d.A1, d.A2, d.A3)
	}

	// Roll at 10 °/s for 2 s
	s.SetRates(10, 0, 0)
	for i := 1; i <= 40; i++ {
		now = t0.Add(time.Duration(i) * 50 * time.Millisecond)
		if d, err = s.Read(); err != nil {
			t.Fatal(err)
		}
	}
	roll, pitch, _ := ahrs.ToEuler(s.Attitude())
	if math.Abs(roll-20) > 1e-3 || math.Abs(pitch) > 1e-3 {
		t.Errorf("sim attitude roll %f pitch %f, want 20, 0", roll, pitch)
	}
	if notSmall(d.A2-math.Sin(20*ahrs.Deg)) || notSmall(d.A3-math.Cos(20*ahrs.Deg)) || d.G1 != 10 {
		t.Errorf("rolled sim reads %+v", d)
	}

	s.Close()
	if _, err := s.Read(); err == nil {
		t.Error("read after close succeeded")
	}
}
