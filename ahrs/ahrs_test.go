package ahrs

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func level(t time.Time) *Measurement {
	return &Measurement{A3: 1, Temp: 25, T: t}
}

func TestComplementaryUnitNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := NewComplementary(DefaultAlpha)
	t0 := time.Unix(1000, 0)
	for i := 0; i < 5000; i++ {
		m := &Measurement{
			A1: rng.Float64()*4 - 2,
			A2: rng.Float64()*4 - 2,
			A3: rng.Float64()*4 - 2,
			B1: rng.Float64()*500 - 250,
			B2: rng.Float64()*500 - 250,
			B3: rng.Float64()*500 - 250,
			// Irregular and occasionally repeated timestamps
			T: t0.Add(time.Duration(rng.Intn(60)) * time.Millisecond),
		}
		t0 = m.T
		e := s.Compute(m)
		if n := Norm(e.Q); math.Abs(n-1) > 1e-9 {
			t.Fatalf("tick %d: quaternion norm %.12f", i, n)
		}
		if e.DT < MinDT {
			t.Fatalf("tick %d: dt %f below floor", i, e.DT)
		}
		_, _, yaw := e.RollPitchYaw()
		if yaw <= -180-Tolerance || yaw > 180+Tolerance {
			t.Fatalf("tick %d: yaw %f out of range", i, yaw)
		}
	}
}

func TestComplementaryZeroRateNoDrift(t *testing.T) {
	s := NewComplementary(DefaultAlpha)
	t0 := time.Unix(0, 0)
	for i := 0; i < 20*60*10; i++ { // 10 minutes at 20 Hz
		s.Compute(level(t0.Add(time.Duration(i) * 50 * time.Millisecond)))
	}
	if !checkQ(s.Estimate().Q, 0, 0, 0) {
		t.Error("zero-rate level samples moved the estimate")
	}
}

func TestComplementaryDTFloor(t *testing.T) {
	s := NewComplementary(DefaultAlpha)
	t0 := time.Unix(50, 0)
	if e := s.Compute(level(t0)); e.DT != MinDT {
		t.Errorf("first tick dt %f, want %f", e.DT, MinDT)
	}
	if e := s.Compute(level(t0)); e.DT != MinDT {
		t.Errorf("repeated timestamp dt %f, want %f", e.DT, MinDT)
	}
	if e := s.Compute(level(t0.Add(-time.Second))); e.DT != MinDT {
		t.Errorf("backwards timestamp dt %f, want %f", e.DT, MinDT)
	}
	if e := s.Compute(level(t0.Add(50 * time.Millisecond))); math.Abs(e.DT-1.05) > 1e-9 {
		t.Errorf("dt %f, want 1.05", e.DT)
	}
}

func TestComplementaryConvergesToAccelTilt(t *testing.T) {
	s := NewComplementary(DefaultAlpha)
	t0 := time.Unix(0, 0)
	// Gravity seen with the vehicle rolled 20°: ay = sin(20°), az = cos(20°)
	ay, az := math.Sin(20*Deg), math.Cos(20*Deg)
	for i := 0; i < 500; i++ {
		s.Compute(&Measurement{A2: ay, A3: az, T: t0.Add(time.Duration(i) * 50 * time.Millisecond)})
	}
	roll, pitch, _ := s.CalcRollPitchHeading()
	if notSmall(roll-20) || notSmall(pitch) {
		t.Errorf("converged to roll %f, pitch %f; want 20, 0", roll, pitch)
	}
}

func TestComplementaryYawGyroOnly(t *testing.T) {
	s := NewComplementary(DefaultAlpha)
	t0 := time.Unix(0, 0)
	// 10 °/s of yaw for 20 s wraps past 180°
	for i := 1; i <= 400; i++ {
		m := level(t0.Add(time.Duration(i) * 50 * time.Millisecond))
		m.B3 = 10
		s.Compute(m)
	}
	_, _, yaw := s.CalcRollPitchHeading()
	if math.Abs(WrapYaw(yaw-200)) > 1 {
		t.Errorf("yaw %f, want about -160", yaw)
	}
	if yaw > 0 {
		t.Errorf("yaw %f was not wrapped", yaw)
	}
}

func TestComplementaryCarriesRawValues(t *testing.T) {
	s := NewComplementary(2) // Out of range, replaced by the default
	if s.Alpha != DefaultAlpha {
		t.Errorf("alpha %f, want %f", s.Alpha, DefaultAlpha)
	}
	if s.Valid() {
		t.Error("estimator valid before first sample")
	}
	m := &Measurement{A1: 0.1, A2: 0.2, A3: 0.9, B1: 1, B2: 2, B3: 3, Temp: 31.5, T: time.Unix(7, 0)}
	e := s.Compute(m)
	if e.A1 != 0.1 || e.A2 != 0.2 || e.A3 != 0.9 || e.B1 != 1 || e.B2 != 2 || e.B3 != 3 || e.Temp != 31.5 || !e.T.Equal(m.T) {
		t.Errorf("raw values not carried: %+v", e)
	}
	if !s.Valid() {
		t.Error("estimator not valid after a sample")
	}
	s.Reset()
	if s.Valid() || s.Estimate().Q != Identity {
		t.Error("reset did not restore the initial state")
	}
}

func TestVarianceAccumulator(t *testing.T) {
	obs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	f := NewVarianceAccumulator(obs[0], 1)
	var n, m, v float64
	for _, x := range obs[1:] {
		n, m, v = f(x)
	}
	if notSmall(n-8) || notSmall(m-5) || notSmall(v-4) {
		t.Errorf("got n=%f mean=%f var=%f, want 8, 5, 4", n, m, v)
	}
}

func TestAHRSLogger(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "ahrs.csv")
	l, err := NewAHRSLogger(fn, "t", "roll", "pitch")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Log(1, 2.5, -3); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(1, 2); err == nil {
		t.Error("short row was accepted")
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		t.Fatal(err)
	}
	want := "t,roll,pitch\n1.000000,2.500000,-3.000000\n"
	if string(b) != want {
		t.Errorf("got %q, want %q", string(b), want)
	}
	if _, err := NewAHRSLogger(filepath.Join(t.TempDir(), "x.csv")); err == nil || !strings.Contains(err.Error(), "no columns") {
		t.Errorf("expected no-columns error, got %v", err)
	}
}
