// Package operator turns operator key input into commands and builds the
// operator's view of the vehicle.
package operator

import (
	"log"
	"strings"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/ahrsweb"
	"github.com/Fritz179/fhgr-poisson/link"
	"github.com/westphae/quaternion"
)

const (
	AttitudeRate     = 90.0 // Roll and pitch command rate, °/s
	YawRate          = 60.0 // °/s
	ThrottleRate     = 1.0  // Per second
	FineThrottleRate = 0.3  // Per second
	GainUp           = 1.1
	GainDown         = 0.9
)

// DefaultGains holds the starting gains of each law.
var DefaultGains = [link.NumLaws][3]float64{
	{1.0 / 90, 1.0 / 90, 1.0 / 90},
	{1.0 / 40, 1.0 / 40, 1.0 / 90},
	{1.0 / 90, 1.0 / 90, 1.0 / 90},
}

// Pilot integrates held keys into a target orientation and throttle.
// It is not safe for concurrent use.
type Pilot struct {
	ThrottleLimit float64 // At most link.ThrottleLimit

	target   quaternion.Quaternion
	throttle float64
	law      int
	gains    [link.NumLaws][3]float64
	held     map[string]bool
}

// NewPilot starts level with zero throttle. An out of range law selects law 0.
func NewPilot(gains [link.NumLaws][3]float64, law int) *Pilot {
	if law < 0 || law >= link.NumLaws {
		law = 0
	}
	return &Pilot{
		ThrottleLimit: link.ThrottleLimit,
		target:        ahrs.Identity,
		law:           law,
		gains:         gains,
		held:          make(map[string]bool),
	}
}

// keyName folds the names browsers and terminals use for the same key.
func keyName(k string) string {
	k = strings.ToLower(k)
	switch k {
	case "control", "ctrl_l", "ctrl_r":
		return "ctrl"
	case "shift_l", "shift_r":
		return "shift"
	case "space", "spacebar":
		return " "
	}
	return k
}

// Key handles one key event. yaw is the yaw, in degrees, kept by a level reset.
func (p *Pilot) Key(ev ahrsweb.KeyEvent, yaw float64) {
	k := keyName(ev.Key)
	if !ev.Down {
		delete(p.held, k)
		return
	}
	switch k {
	case " ":
		p.Level(yaw)
	case "0", "1", "2":
		p.law = int(k[0] - '0')
		log.Printf("Operator: law %d selected\n", p.law)
	case "o":
		p.scaleGain(0, GainUp)
	case "p":
		p.scaleGain(0, GainDown)
	case "l":
		p.scaleGain(1, GainUp)
	case "k":
		p.scaleGain(1, GainDown)
	case "m":
		p.scaleGain(2, GainUp)
	case "n":
		p.scaleGain(2, GainDown)
	default:
		p.held[k] = true
	}
}

func (p *Pilot) scaleGain(i int, f float64) {
	p.gains[p.law][i] *= f
	log.Printf("Operator: law %d gains %.6f,%.6f,%.6f\n", p.law, p.gains[p.law][0], p.gains[p.law][1], p.gains[p.law][2])
}

// Level resets the target to wings level at the given yaw and cuts the throttle.
func (p *Pilot) Level(yaw float64) {
	p.target = ahrs.FromEuler(0, 0, yaw)
	p.throttle = 0
}

// Step advances the target by dt seconds of the currently held keys.
// Rates are applied in the body frame.
func (p *Pilot) Step(dt float64) {
	if dt <= 0 {
		return
	}
	var roll, pitch, yaw float64
	if p.held["w"] {
		pitch -= AttitudeRate
	}
	if p.held["s"] {
		pitch += AttitudeRate
	}
	if p.held["a"] {
		roll -= AttitudeRate
	}
	if p.held["d"] {
		roll += AttitudeRate
	}
	if p.held["q"] {
		yaw -= YawRate
	}
	if p.held["e"] {
		yaw += YawRate
	}
	if roll != 0 || pitch != 0 || yaw != 0 {
		p.target = ahrs.Integrate(p.target, roll, pitch, yaw, dt)
	}

	if p.held["shift"] {
		p.throttle += ThrottleRate * dt
	}
	if p.held["ctrl"] {
		p.throttle -= ThrottleRate * dt
	}
	if p.held["r"] {
		p.throttle += FineThrottleRate * dt
	}
	if p.held["f"] {
		p.throttle -= FineThrottleRate * dt
	}
	p.throttle = link.ClampThrottle(ahrs.Clamp(p.throttle, -p.ThrottleLimit, p.ThrottleLimit))
}

// Command returns the command for the current target, law and that law's gains.
func (p *Pilot) Command() link.Command {
	return link.Command{
		Target:   p.target,
		Throttle: p.throttle,
		Law:      p.law,
		Gains:    p.gains[p.law],
	}
}

func (p *Pilot) Target() quaternion.Quaternion { return p.target }
func (p *Pilot) Throttle() float64             { return p.throttle }
func (p *Pilot) Law() int                      { return p.law }

// Gains returns the gains of law.
func (p *Pilot) Gains(law int) [3]float64 {
	return p.gains[law]
}
