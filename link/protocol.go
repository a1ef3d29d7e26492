// Package link carries commands from the operator to the vehicle and
// telemetry back, one ASCII CSV value per UDP datagram.
package link

import (
	"math"
	"strconv"
	"strings"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

const (
	CommandFields = 9
	StateFields   = 13
	NumLaws       = 3 // Law ids are 0..NumLaws-1
	ThrottleLimit = 1.0
	MaxDatagram   = 1024
)

// ErrMalformed is the cause of every decode error.
var ErrMalformed = errors.New("malformed datagram")

// Command is what the operator wants: a target orientation, a throttle, the
// control law to use and that law's gains.
type Command struct {
	Target   quaternion.Quaternion
	Throttle float64
	Law      int
	Gains    [3]float64
}

// State is the vehicle's telemetry: its estimated orientation, the raw inertial
// values it was computed from and an echo of the throttle and law in use.
type State struct {
	Q          quaternion.Quaternion
	A1, A2, A3 float64 // G
	G1, G2, G3 float64 // °/s
	Temp       float64 // °C
	Throttle   float64
	Law        int
}

// NeutralCommand levels the vehicle and cuts the throttle.
func NeutralCommand() Command {
	return Command{Target: ahrs.Identity}
}

// NeutralState is sent by a vehicle that is shutting down.
func NeutralState() State {
	return State{Q: ahrs.Identity}
}

// StateFromEstimate builds telemetry from an estimator output and the command
// currently being flown.
func StateFromEstimate(e ahrs.Estimate, c Command) State {
	return State{
		Q:  e.Q,
		A1: e.A1, A2: e.A2, A3: e.A3,
		G1: e.B1, G2: e.B2, G3: e.B3,
		Temp:     e.Temp,
		Throttle: ClampThrottle(c.Throttle),
		Law:      c.Law,
	}
}

// ClampThrottle limits a throttle to ±ThrottleLimit.
func ClampThrottle(t float64) float64 {
	return ahrs.Clamp(t, -ThrottleLimit, ThrottleLimit)
}

type encoder struct {
	b []byte
}

func (e *encoder) float(v float64, prec int) {
	if len(e.b) > 0 {
		e.b = append(e.b, ',')
	}
	e.b = strconv.AppendFloat(e.b, v, 'f', prec, 64)
}

func (e *encoder) int(v int) {
	if len(e.b) > 0 {
		e.b = append(e.b, ',')
	}
	e.b = strconv.AppendInt(e.b, int64(v), 10)
}

func (e *encoder) quat(q quaternion.Quaternion) {
	q = ahrs.Normalize(q)
	e.float(q.X, 6)
	e.float(q.Y, 6)
	e.float(q.Z, 6)
	e.float(q.W, 6)
}

// Encode renders the command as qx,qy,qz,qw,throttle,law,gain0,gain1,gain2.
func (c Command) Encode() []byte {
	e := encoder{b: make([]byte, 0, 96)}
	e.quat(c.Target)
	e.float(ClampThrottle(c.Throttle), 2)
	e.int(c.Law)
	for _, g := range c.Gains {
		e.float(g, 6)
	}
	return e.b
}

// Encode renders the state as qx,qy,qz,qw,ax,ay,az,gx,gy,gz,temp,throttle,law.
func (s State) Encode() []byte {
	e := encoder{b: make([]byte, 0, 128)}
	e.quat(s.Q)
	for _, v := range []float64{s.A1, s.A2, s.A3, s.G1, s.G2, s.G3} {
		e.float(v, 4)
	}
	e.float(s.Temp, 2)
	e.float(ClampThrottle(s.Throttle), 2)
	e.int(s.Law)
	return e.b
}

type decoder struct {
	fields []string
	i      int
	err    error
}

func newDecoder(msg []byte, want int) (*decoder, error) {
	fields := strings.Split(strings.TrimSpace(string(msg)), ",")
	if len(fields) != want {
		return nil, errors.Wrapf(ErrMalformed, "%d fields, want %d", len(fields), want)
	}
	return &decoder{fields: fields}, nil
}

func (d *decoder) float() float64 {
	if d.err != nil {
		return 0
	}
	f := strings.TrimSpace(d.fields[d.i])
	d.i++
	v, err := strconv.ParseFloat(f, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		d.err = errors.Wrapf(ErrMalformed, "field %d: bad number %q", d.i-1, f)
		return 0
	}
	return v
}

func (d *decoder) law() int {
	if d.err != nil {
		return 0
	}
	f := strings.TrimSpace(d.fields[d.i])
	d.i++
	v, err := strconv.Atoi(f)
	if err != nil {
		d.err = errors.Wrapf(ErrMalformed, "field %d: bad law id %q", d.i-1, f)
		return 0
	}
	if v < 0 || v >= NumLaws {
		d.err = errors.Wrapf(ErrMalformed, "field %d: law id %d out of range", d.i-1, v)
		return 0
	}
	return v
}

func (d *decoder) quat() quaternion.Quaternion {
	q := quaternion.Quaternion{X: d.float(), Y: d.float(), Z: d.float(), W: d.float()}
	if d.err != nil {
		return ahrs.Identity
	}
	if ahrs.Norm(q) < ahrs.Small {
		d.err = errors.Wrap(ErrMalformed, "zero quaternion")
		return ahrs.Identity
	}
	return ahrs.Normalize(q)
}

// DecodeCommand parses a command datagram. The quaternion is normalized and
// the throttle clamped.
func DecodeCommand(msg []byte) (c Command, err error) {
	d, err := newDecoder(msg, CommandFields)
	if err != nil {
		return
	}
	c.Target = d.quat()
	c.Throttle = ClampThrottle(d.float())
	c.Law = d.law()
	for i := range c.Gains {
		c.Gains[i] = d.float()
	}
	if d.err != nil {
		return Command{}, d.err
	}
	return
}

// DecodeState parses a telemetry datagram. The quaternion is normalized and
// the throttle clamped.
func DecodeState(msg []byte) (s State, err error) {
	d, err := newDecoder(msg, StateFields)
	if err != nil {
		return
	}
	s.Q = d.quat()
	s.A1, s.A2, s.A3 = d.float(), d.float(), d.float()
	s.G1, s.G2, s.G3 = d.float(), d.float(), d.float()
	s.Temp = d.float()
	s.Throttle = ClampThrottle(d.float())
	s.Law = d.law()
	if d.err != nil {
		return State{}, d.err
	}
	return
}
