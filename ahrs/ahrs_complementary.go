package ahrs

import (
	"math"
	"time"

	"github.com/westphae/quaternion"
)

// ComplementaryState blends gyro integration with the tilt implied by the
// accelerometer's gravity vector. Yaw has no reference and is gyro-only.
type ComplementaryState struct {
	Alpha float64 // Weight of the gyro-integrated roll and pitch, 0..1

	q                quaternion.Quaternion
	roll, pitch, yaw float64 // Deg
	t                time.Time
	est              Estimate
	valid            bool
}

// NewComplementary returns an estimator starting at Identity.
// An alpha outside [0, 1] is replaced by DefaultAlpha.
func NewComplementary(alpha float64) (s *ComplementaryState) {
	if alpha < 0 || alpha > 1 || math.IsNaN(alpha) {
		alpha = DefaultAlpha
	}
	s = &ComplementaryState{Alpha: alpha}
	s.Reset()
	return
}

// Reset returns the estimator to Identity and forgets the last sample time.
func (s *ComplementaryState) Reset() {
	s.q = Identity
	s.roll, s.pitch, s.yaw = 0, 0, 0
	s.t = time.Time{}
	s.est = Estimate{Q: Identity}
	s.valid = false
}

// Compute advances the estimate by one sample.
func (s *ComplementaryState) Compute(m *Measurement) Estimate {
	dt := MinDT
	if !s.t.IsZero() {
		dt = math.Max(m.T.Sub(s.t).Seconds(), MinDT)
	}
	s.t = m.T

	// Body-frame increment: right multiplication
	q := Integrate(s.q, m.B1, m.B2, m.B3, dt)

	rollAcc := math.Atan2(m.A2, m.A3) / Deg
	pitchAcc := math.Atan2(-m.A1, math.Sqrt(m.A2*m.A2+m.A3*m.A3)) / Deg

	rollGyro, pitchGyro, yawGyro := ToEuler(q)
	s.roll = s.Alpha*rollGyro + (1-s.Alpha)*rollAcc
	s.pitch = s.Alpha*pitchGyro + (1-s.Alpha)*pitchAcc
	s.yaw = WrapYaw(yawGyro)

	s.q = Normalize(FromEuler(s.roll, s.pitch, s.yaw))
	s.est = Estimate{
		Q:  s.q,
		A1: m.A1, A2: m.A2, A3: m.A3,
		B1: m.B1, B2: m.B2, B3: m.B3,
		Temp: m.Temp,
		T:    m.T,
		DT:   dt,
	}
	s.valid = true
	return s.est
}

// Estimate returns the most recent estimate.
func (s *ComplementaryState) Estimate() Estimate {
	return s.est
}

// Valid reports whether at least one sample has been processed.
func (s *ComplementaryState) Valid() bool {
	return s.valid
}

// CalcRollPitchHeading returns the current roll, pitch and yaw estimates, in degrees.
func (s *ComplementaryState) CalcRollPitchHeading() (roll float64, pitch float64, heading float64) {
	return s.roll, s.pitch, s.yaw
}
