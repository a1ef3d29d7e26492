package actuators

import (
	"log"
	"sync"
)

// NullDriver drives no hardware. It keeps the last duty per channel and can
// log every change, for bench runs and tests.
type NullDriver struct {
	Verbose bool

	mu      sync.Mutex
	enabled map[string]bool
	duty    map[string]float64
}

func NewNullDriver() *NullDriver {
	return &NullDriver{enabled: make(map[string]bool), duty: make(map[string]float64)}
}

func (d *NullDriver) Enable(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled[ch.Name] = true
	return nil
}

func (d *NullDriver) SetDuty(ch Channel, fraction float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Verbose && d.duty[ch.Name] != fraction {
		log.Printf("Actuators: %s duty %.4f\n", ch.Name, fraction)
	}
	d.duty[ch.Name] = fraction
	return nil
}

func (d *NullDriver) Disable(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled[ch.Name] = false
	return nil
}

// Duty returns the last fraction written to the named channel.
func (d *NullDriver) Duty(name string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duty[name]
}

// Enabled reports whether the named channel is enabled.
func (d *NullDriver) Enabled(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled[name]
}
