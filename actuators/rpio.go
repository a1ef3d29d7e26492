package actuators

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// Param freq should be in range 4688Hz - 19.2MHz to prevent unexpected
// behavior, so the PWM clock runs at freq*cycleLen.
const cycleLen = 20000

// pwmChannels maps the BCM pins with hardware PWM to their PWM channel.
var pwmChannels = map[int]int{12: 0, 18: 0, 13: 1, 19: 1}

// CheckHardwarePWM reports whether every connected channel of l sits on its
// own hardware PWM channel. BCM 12/18 and 13/19 share a channel, so at most
// two outputs can be driven independently.
func CheckHardwarePWM(l Layout) error {
	used := make(map[int]string)
	for _, ch := range l.channels() {
		if !ch.Connected() {
			continue
		}
		pc, ok := pwmChannels[ch.Pin]
		if !ok {
			return errors.Errorf("%s: BCM %d has no hardware PWM", ch.Name, ch.Pin)
		}
		if other, dup := used[pc]; dup {
			return errors.Errorf("%s: BCM %d shares PWM channel %d with %s", ch.Name, ch.Pin, pc, other)
		}
		used[pc] = ch.Name
	}
	return nil
}

// RPIODriver drives the Raspberry Pi hardware PWM through /dev/gpiomem.
// Enable refuses a channel whose PWM channel is already in use.
type RPIODriver struct {
	freq int

	mu     sync.Mutex
	opened bool
	owners map[int]string // PWM channel -> enabled output
}

// NewRPIODriver maps the GPIO memory. Close releases it.
func NewRPIODriver(freq int) (*RPIODriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "Actuators: couldn't open GPIO memory")
	}
	return &RPIODriver{freq: freq, opened: true, owners: make(map[int]string)}, nil
}

func (d *RPIODriver) Enable(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return errors.New("Actuators: GPIO closed")
	}
	pc, ok := pwmChannels[ch.Pin]
	if !ok {
		return errors.Errorf("Actuators: BCM %d has no hardware PWM", ch.Pin)
	}
	if owner, busy := d.owners[pc]; busy && owner != ch.Name {
		return errors.Errorf("Actuators: PWM channel %d already drives %s", pc, owner)
	}
	d.owners[pc] = ch.Name
	pin := rpio.Pin(ch.Pin)
	pin.Mode(rpio.Pwm)
	pin.Freq(d.freq * cycleLen)
	return nil
}

func (d *RPIODriver) SetDuty(ch Channel, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return errors.Errorf("Actuators: duty %f out of range", fraction)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return errors.New("Actuators: GPIO closed")
	}
	rpio.Pin(ch.Pin).DutyCycle(uint32(fraction*cycleLen+0.5), cycleLen)
	return nil
}

func (d *RPIODriver) Disable(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	if pc, ok := pwmChannels[ch.Pin]; ok && d.owners[pc] == ch.Name {
		delete(d.owners, pc)
	}
	pin := rpio.Pin(ch.Pin)
	pin.Output()
	pin.Low()
	return nil
}

// Close unmaps the GPIO memory.
func (d *RPIODriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	d.opened = false
	return rpio.Close()
}
