package actuators

import (
	"math"
	"testing"

	"github.com/Fritz179/fhgr-poisson/control"
	"github.com/pkg/errors"
)

const Tolerance = 1e-9

func notSmall(x float64) bool {
	return math.Abs(x) > Tolerance
}

func TestPulse(t *testing.T) {
	cases := []struct {
		e    Envelope
		v    float64
		want float64
	}{
		{Envelope{-0.8, 0.03, 0.8}, 0, 1515},
		{Envelope{-1, 0, 1}, 0, 1500},
		{Envelope{-1, 0, 1}, 1, 2000},
		{Envelope{-1, 0, 1}, -1, 1000},
		{Envelope{-1, 0, 1}, 7, 2000},
		{Envelope{-0.9, 0, 0.9}, 1, 1950},
		{Envelope{-0.9, 0, 0.9}, -5, 1050},
		{Envelope{-0.5, 0.15, 0.8}, 0, 1575},
		{Envelope{-0.5, 0.15, 0.8}, -1, 1250},
		{Envelope{-0.5, 0.15, 0.8}, 1, 1900},
	}
	for i, c := range cases {
		if got := c.e.Pulse(c.v); math.Abs(got-c.want) > 1e-6 {
			t.Errorf("%d: Pulse(%f) with %+v = %f, want %f", i, c.v, c.e, got, c.want)
		}
	}
}

func TestEnvelopeValidate(t *testing.T) {
	good := []Envelope{{-1, 0, 1}, {-0.5, 0.15, 0.8}, {0, 0, 0}}
	for _, e := range good {
		if err := e.Validate(); err != nil {
			t.Errorf("%+v: %s", e, err)
		}
	}
	bad := []Envelope{{-1.1, 0, 1}, {-1, 0, 1.5}, {0.2, 0, 1}, {-1, 0.9, 0.5}, {0.5, 0, -0.5}, {math.NaN(), 0, 1}}
	for _, e := range bad {
		if err := e.Validate(); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("%+v: got %v, want ErrInvalidEnvelope", e, err)
		}
	}
}

func TestMapperApply(t *testing.T) {
	d := NewNullDriver()
	m, err := NewMapper(d, DefaultFreq, DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(m.Period() - 20000) {
		t.Errorf("period %f", m.Period())
	}
	if err := m.Enable(); err != nil {
		t.Fatal(err)
	}
	// Enabling drives every channel to its trim; the motor is inverted
	for name, want := range map[string]float64{"left": 0.075, "middle": 1575.0 / 20000, "right": 0.075, "throttle": 1 - 0.075} {
		if !d.Enabled(name) || notSmall(d.Duty(name)-want) {
			t.Errorf("%s: enabled %v duty %f, want %f", name, d.Enabled(name), d.Duty(name), want)
		}
	}

	p, err := m.Apply(control.Output{Left: 1, Middle: -1, Right: -0.5, Throttle: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if notSmall(p.Left-1950) || notSmall(p.Middle-1250) || notSmall(p.Right-1250) || notSmall(p.Throttle-1750) {
		t.Errorf("pulses %+v", p)
	}
	if notSmall(d.Duty("throttle")-(1-1750.0/20000)) || notSmall(d.Duty("left")-1950.0/20000) {
		t.Errorf("duties throttle %f left %f", d.Duty("throttle"), d.Duty("left"))
	}
	if m.Last() != p {
		t.Errorf("last %+v, want %+v", m.Last(), p)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if d.Enabled("left") || notSmall(d.Duty("left")-0.075) {
		t.Error("close did not neutralize and disable")
	}
}

func TestNewMapperRejects(t *testing.T) {
	l := DefaultLayout()
	l.Middle.Envelope = Envelope{Min: 0.5, Trim: 0, Max: 1}
	if _, err := NewMapper(NewNullDriver(), DefaultFreq, l); !errors.Is(err, ErrInvalidEnvelope) {
		t.Errorf("got %v", err)
	}
	if _, err := NewMapper(NewNullDriver(), 0, DefaultLayout()); err == nil {
		t.Error("zero frequency accepted")
	}
}

type failingDriver struct{ *NullDriver }

func (d *failingDriver) SetDuty(ch Channel, fraction float64) error {
	return errors.New("pwm chip gone")
}

func TestMapperDriverError(t *testing.T) {
	m, err := NewMapper(&failingDriver{NewNullDriver()}, DefaultFreq, DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Apply(control.Output{}); err == nil {
		t.Error("driver error swallowed")
	}
}

func TestUnconnectedChannel(t *testing.T) {
	l := DefaultLayout()
	l.Middle.Pin = -1
	d := NewNullDriver()
	m, err := NewMapper(d, DefaultFreq, l)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Enable(); err != nil {
		t.Fatal(err)
	}
	p, err := m.Apply(control.Output{Middle: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if d.Enabled("middle") || d.Duty("middle") != 0 {
		t.Error("unconnected channel was written")
	}
	if notSmall(p.Middle - 1825) {
		t.Errorf("middle pulse %f, want 1825", p.Middle)
	}
}

func TestCheckHardwarePWM(t *testing.T) {
	if err := CheckHardwarePWM(DefaultLayout()); err == nil {
		t.Error("four outputs on two PWM channels accepted")
	}
	l := DefaultLayout()
	l.Middle.Pin, l.Right.Pin = -1, -1
	if err := CheckHardwarePWM(l); err != nil {
		t.Errorf("12 and 19: %s", err)
	}
	l.Throttle.Pin = 17
	if err := CheckHardwarePWM(l); err == nil {
		t.Error("BCM 17 accepted")
	}
}
