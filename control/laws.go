// Package control turns an orientation error and a throttle into bounded
// control surface deflections.
package control

import (
	"log"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

// LawKind selects a control law. The values are the law ids on the wire.
type LawKind int

const (
	LawDirect       LawKind = iota // Target attitude drives the surfaces directly
	LawProportional                // Surfaces proportional to the attitude error
	LawIntegrator                  // Dead reckoning experiment, no authority
	NumLaws         = 3
)

func (k LawKind) String() string {
	switch k {
	case LawDirect:
		return "direct"
	case LawProportional:
		return "proportional"
	case LawIntegrator:
		return "integrator"
	}
	return "unknown"
}

var (
	ErrNotImplemented = errors.New("control law not implemented")
	ErrUnknownLaw     = errors.New("unknown control law")
)

// Output is a deflection per surface and a throttle, each nominally in [-1, 1].
type Output struct {
	Left, Middle, Right float64
	Throttle            float64
}

// Setpoint is what the operator asked for.
type Setpoint struct {
	Target   quaternion.Quaternion
	Throttle float64
	Law      LawKind
	Gains    [3]float64
}

// Law computes the raw mix: left = pitch term + roll term,
// right = pitch term - roll term, middle = yaw term.
type Law interface {
	Kind() LawKind
	Update(est ahrs.Estimate, sp Setpoint) (Output, error)
}

// NewLaw returns a fresh instance of the law, owning its own state.
func NewLaw(kind LawKind) (Law, error) {
	switch kind {
	case LawDirect:
		return &directLaw{}, nil
	case LawProportional:
		return &proportionalLaw{}, nil
	case LawIntegrator:
		return &integratorLaw{logEvery: time.Second}, nil
	}
	return nil, errors.Wrapf(ErrUnknownLaw, "law id %d", int(kind))
}

// directLaw ignores the measurement.
type directLaw struct{}

func (l *directLaw) Kind() LawKind { return LawDirect }

func (l *directLaw) Update(est ahrs.Estimate, sp Setpoint) (Output, error) {
	r, p, y := ahrs.ToEuler(sp.Target)
	g := sp.Gains
	return Output{
		Left:     (p + r) * g[0],
		Right:    (p - r) * g[0],
		Middle:   y * g[1],
		Throttle: sp.Throttle,
	}, nil
}

// proportionalLaw acts on the rotation from the measured to the target
// attitude, in the body frame.
type proportionalLaw struct{}

func (l *proportionalLaw) Kind() LawKind { return LawProportional }

func (l *proportionalLaw) Update(est ahrs.Estimate, sp Setpoint) (Output, error) {
	re, pe, ye := ahrs.ToEuler(ahrs.Relative(est.Q, sp.Target))
	g := sp.Gains
	return Output{
		Left:     pe*g[0] + re*g[1],
		Right:    pe*g[0] - re*g[1],
		Middle:   ye * g[2],
		Throttle: sp.Throttle,
	}, nil
}

// integratorLaw integrates forward acceleration into a speed and a distance
// but never commands the surfaces. Gains do not scale the integration.
type integratorLaw struct {
	V, X     float64 // m/s, m
	logEvery time.Duration
	lastLog  time.Time
}

func (l *integratorLaw) Kind() LawKind { return LawIntegrator }

func (l *integratorLaw) Update(est ahrs.Estimate, sp Setpoint) (Output, error) {
	ax := est.A1 * ahrs.G0
	l.V += ax * est.DT
	l.X += l.V * est.DT
	if est.T.Sub(l.lastLog) >= l.logEvery {
		log.Printf("Control: integrator ax=%.4f v=%.4f x=%.4f\n", ax, l.V, l.X)
		l.lastLog = est.T
	}
	return Output{}, ErrNotImplemented
}
