package control

import (
	"log"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
)

// Mounting declares which surfaces deflect opposite to the raw mix once
// installed. The default inverts the right surface.
type Mounting struct {
	InvertLeft   bool `yaml:"invert_left"`
	InvertMiddle bool `yaml:"invert_middle"`
	InvertRight  bool `yaml:"invert_right"`
}

// DefaultMounting is the mounting of the reference airframe.
var DefaultMounting = Mounting{InvertRight: true}

func (m Mounting) apply(o Output) Output {
	if m.InvertLeft {
		o.Left = -o.Left
	}
	if m.InvertMiddle {
		o.Middle = -o.Middle
	}
	if m.InvertRight {
		o.Right = -o.Right
	}
	return o
}

// Result is the outcome of one mixing step.
type Result struct {
	Raw       Output // Law output before mounting and clamping
	Output    Output // Every channel in [-1, 1]
	Law       LawKind
	Authority bool // False when the law does not drive the surfaces
}

// Mixer runs the law selected by each setpoint. Law instances are kept per
// kind, so a law's state persists while other laws are selected.
type Mixer struct {
	Mounting Mounting

	laws      map[LawKind]Law
	authority map[LawKind]bool
}

// NewMixer returns a Mixer with no law instantiated yet.
func NewMixer(m Mounting) *Mixer {
	return &Mixer{
		Mounting:  m,
		laws:      make(map[LawKind]Law),
		authority: make(map[LawKind]bool),
	}
}

func (m *Mixer) law(kind LawKind) (Law, error) {
	if l, ok := m.laws[kind]; ok {
		return l, nil
	}
	l, err := NewLaw(kind)
	if err != nil {
		return nil, err
	}
	m.laws[kind] = l
	return l, nil
}

// Mix computes the bounded output for the estimate and setpoint. A law without
// authority yields a neutral output with Authority false and no error.
func (m *Mixer) Mix(est ahrs.Estimate, sp Setpoint) (Result, error) {
	l, err := m.law(sp.Law)
	if err != nil {
		return Result{}, err
	}
	res := Result{Law: sp.Law, Authority: true}
	raw, err := l.Update(est, sp)
	switch {
	case errors.Is(err, ErrNotImplemented):
		res.Authority = false
		raw = Output{}
	case err != nil:
		return Result{}, errors.Wrapf(err, "law %s", sp.Law)
	}
	if was, seen := m.authority[sp.Law]; !seen || was != res.Authority {
		if !res.Authority {
			log.Printf("Control: law %s has no authority, holding neutral\n", sp.Law)
		}
		m.authority[sp.Law] = res.Authority
	}

	res.Raw = raw
	o := m.Mounting.apply(raw)
	res.Output = Output{
		Left:     ahrs.Clamp(o.Left, -1, 1),
		Middle:   ahrs.Clamp(o.Middle, -1, 1),
		Right:    ahrs.Clamp(o.Right, -1, 1),
		Throttle: ahrs.Clamp(o.Throttle, -1, 1),
	}
	return res, nil
}
