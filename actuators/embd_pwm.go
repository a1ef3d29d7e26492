package actuators

import (
	"sync"

	"github.com/kidoman/embd"
	"github.com/pkg/errors"
)

// EmbdDriver drives PWM pins through embd, for boards whose host package
// supports PWM. Pin numbers are passed to embd as pin keys.
type EmbdDriver struct {
	periodNS int

	mu   sync.Mutex
	pins map[int]embd.PWMPin
}

// NewEmbdDriver returns a driver running every pin at freq Hz.
func NewEmbdDriver(freq int) *EmbdDriver {
	return &EmbdDriver{periodNS: 1e9 / freq, pins: make(map[int]embd.PWMPin)}
}

func (d *EmbdDriver) Enable(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pins[ch.Pin]; ok {
		return nil
	}
	pin, err := embd.NewPWMPin(ch.Pin)
	if err != nil {
		return errors.Wrapf(err, "Actuators: couldn't open PWM pin %d", ch.Pin)
	}
	if err := pin.SetPeriod(d.periodNS); err != nil {
		pin.Close()
		return errors.Wrapf(err, "Actuators: couldn't set period on pin %d", ch.Pin)
	}
	d.pins[ch.Pin] = pin
	return nil
}

func (d *EmbdDriver) SetDuty(ch Channel, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return errors.Errorf("Actuators: duty %f out of range", fraction)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	pin, ok := d.pins[ch.Pin]
	if !ok {
		return errors.Errorf("Actuators: pin %d not enabled", ch.Pin)
	}
	return pin.SetDuty(int(fraction*float64(d.periodNS) + 0.5))
}

func (d *EmbdDriver) Disable(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pin, ok := d.pins[ch.Pin]
	if !ok {
		return nil
	}
	delete(d.pins, ch.Pin)
	pin.SetDuty(0)
	return pin.Close()
}
