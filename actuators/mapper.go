// Package actuators maps bounded control outputs to servo and ESC pulses.
package actuators

import (
	"log"
	"math"
	"sync"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/control"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

const (
	DefaultFreq  = 50     // Hz
	NeutralPulse = 1500.0 // µs
	PulseSpan    = 500.0  // µs per unit of output
	MinPulse     = 1000.0 // µs
	MaxPulse     = 2000.0 // µs
)

// ErrInvalidEnvelope is the cause of every envelope validation error.
var ErrInvalidEnvelope = errors.New("invalid actuator envelope")

// Envelope limits a channel's output and offsets its neutral point.
type Envelope struct {
	Min  float64 `yaml:"min"`
	Trim float64 `yaml:"trim"`
	Max  float64 `yaml:"max"`
}

// Validate requires -1 <= Min <= Trim <= Max <= 1.
func (e Envelope) Validate() error {
	for _, v := range []float64{e.Min, e.Trim, e.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidEnvelope, "%+v has a non-finite value", e)
		}
	}
	if e.Min < -1 || e.Max > 1 {
		return errors.Wrapf(ErrInvalidEnvelope, "%+v exceeds [-1, 1]", e)
	}
	if e.Min > e.Trim || e.Trim > e.Max {
		return errors.Wrapf(ErrInvalidEnvelope, "%+v: need min <= trim <= max", e)
	}
	return nil
}

// Pulse returns the pulse width in µs for output v.
func (e Envelope) Pulse(v float64) float64 {
	v = ahrs.Clamp(v+e.Trim, e.Min, e.Max)
	return ahrs.Clamp(mapRange(v, -1, 1, NeutralPulse-PulseSpan, NeutralPulse+PulseSpan), MinPulse, MaxPulse)
}

// mapRange maps value from one range to another.
func mapRange[T constraints.Float](value, fromMin, fromMax, toMin, toMax T) T {
	return (value-fromMin)/(fromMax-fromMin)*(toMax-toMin) + toMin
}

// Channel is one PWM output. A negative Pin leaves the output unconnected: its
// pulse is still computed but nothing is written.
type Channel struct {
	Name     string   `yaml:"name"`
	Pin      int      `yaml:"pin"`
	Envelope Envelope `yaml:"envelope"`
	Inverted bool     `yaml:"inverted"` // Write 1 - duty, for an inverting output stage
}

// Layout assigns the four outputs to channels.
type Layout struct {
	Left     Channel `yaml:"left"`
	Middle   Channel `yaml:"middle"`
	Right    Channel `yaml:"right"`
	Throttle Channel `yaml:"throttle"`
}

// DefaultLayout is the reference airframe: the ESC input is inverted.
func DefaultLayout() Layout {
	return Layout{
		Left:     Channel{Name: "left", Pin: 12, Envelope: Envelope{Min: -0.9, Trim: 0, Max: 0.9}},
		Middle:   Channel{Name: "middle", Pin: 13, Envelope: Envelope{Min: -0.5, Trim: 0.15, Max: 0.8}},
		Right:    Channel{Name: "right", Pin: 18, Envelope: Envelope{Min: -0.9, Trim: 0, Max: 0.9}},
		Throttle: Channel{Name: "throttle", Pin: 19, Envelope: Envelope{Min: -1, Trim: 0, Max: 1}, Inverted: true},
	}
}

// Connected reports whether the channel is wired to a pin.
func (ch Channel) Connected() bool {
	return ch.Pin >= 0
}

func (l Layout) channels() [4]Channel {
	return [4]Channel{l.Left, l.Middle, l.Right, l.Throttle}
}

// Validate checks every channel's envelope.
func (l Layout) Validate() error {
	for _, ch := range l.channels() {
		if err := ch.Envelope.Validate(); err != nil {
			return errors.Wrapf(err, "channel %s", ch.Name)
		}
	}
	return nil
}

// Driver writes duty fractions to PWM outputs.
type Driver interface {
	Enable(ch Channel) error
	SetDuty(ch Channel, fraction float64) error
	Disable(ch Channel) error
}

// Pulses are the widths written for one output, µs.
type Pulses struct {
	Left, Middle, Right, Throttle float64
}

// Mapper turns control outputs into duty fractions on a Driver.
type Mapper struct {
	freq   float64
	layout Layout
	driver Driver

	mu   sync.Mutex
	last Pulses
}

// NewMapper validates the layout and returns a Mapper writing to d at freq Hz.
func NewMapper(d Driver, freq float64, layout Layout) (*Mapper, error) {
	if freq <= 0 || math.IsNaN(freq) {
		return nil, errors.Errorf("Actuators: bad PWM frequency %f", freq)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{freq: freq, layout: layout, driver: d}, nil
}

// Period returns the PWM period in µs.
func (m *Mapper) Period() float64 {
	return 1e6 / m.freq
}

// Duty returns the fraction written to ch for a pulse width in µs.
func (m *Mapper) Duty(ch Channel, pulse float64) float64 {
	f := pulse / m.Period()
	if ch.Inverted {
		return 1 - f
	}
	return f
}

// Enable enables every channel and drives it to neutral.
func (m *Mapper) Enable() error {
	for _, ch := range m.layout.channels() {
		if !ch.Connected() {
			continue
		}
		if err := m.driver.Enable(ch); err != nil {
			return errors.Wrapf(err, "Actuators: couldn't enable %s", ch.Name)
		}
	}
	return m.Neutral()
}

// Apply writes an output to all four channels.
func (m *Mapper) Apply(o control.Output) (Pulses, error) {
	p := Pulses{
		Left:     m.layout.Left.Envelope.Pulse(o.Left),
		Middle:   m.layout.Middle.Envelope.Pulse(o.Middle),
		Right:    m.layout.Right.Envelope.Pulse(o.Right),
		Throttle: m.layout.Throttle.Envelope.Pulse(o.Throttle),
	}
	pulses := [4]float64{p.Left, p.Middle, p.Right, p.Throttle}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ch := range m.layout.channels() {
		if !ch.Connected() {
			continue
		}
		if err := m.driver.SetDuty(ch, m.Duty(ch, pulses[i])); err != nil {
			return p, errors.Wrapf(err, "Actuators: couldn't set %s", ch.Name)
		}
	}
	m.last = p
	return p, nil
}

// Neutral writes the all-zero output, which puts every channel at its trim.
func (m *Mapper) Neutral() error {
	_, err := m.Apply(control.Output{})
	return err
}

// Last returns the pulses most recently written.
func (m *Mapper) Last() Pulses {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Close drives every channel to neutral and disables it.
func (m *Mapper) Close() error {
	err := m.Neutral()
	for _, ch := range m.layout.channels() {
		if !ch.Connected() {
			continue
		}
		if derr := m.driver.Disable(ch); derr != nil && err == nil {
			err = errors.Wrapf(derr, "Actuators: couldn't disable %s", ch.Name)
		}
	}
	if err != nil {
		log.Printf("Actuators: %s\n", err)
	}
	return err
}
