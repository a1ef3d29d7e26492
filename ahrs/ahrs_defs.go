// Package ahrs estimates vehicle attitude from gyro and accelerometer samples.
package ahrs

import (
	"math"
	"time"

	"github.com/westphae/quaternion"
)

const (
	Pi           = math.Pi
	Deg          = Pi / 180
	G0           = 9.80665 // Standard gravity, m/s² per G
	Small        = 1e-9
	MinDT        = 1e-3 // Smallest integration step, s; guards against timer anomalies
	DefaultAlpha = 0.96 // Complementary filter weight given to the gyro estimate
)

// Measurement holds one inertial sample used for updating the estimator.
// Body frame: 1 is to nose, 2 is to left wing, 3 is up.
type Measurement struct {
	A1, A2, A3 float64   // Accelerometer readings, G, body frame
	B1, B2, B3 float64   // Gyro rates in roll, pitch, yaw axes, °/s, body frame
	Temp       float64   // Sensor temperature, °C
	T          time.Time // Time the sample was taken
}

// Estimate is the estimator output for one tick. It is a value: a new one is
// produced for every tick and never modified afterwards.
type Estimate struct {
	Q          quaternion.Quaternion // Orientation, unit quaternion
	A1, A2, A3 float64               // Accelerometer readings carried through, G
	B1, B2, B3 float64               // Gyro rates carried through, °/s
	Temp       float64               // °C
	T          time.Time             // Time of the sample this estimate is based on
	DT         float64               // Integration step used for this tick, s
}

// RollPitchYaw returns the estimated attitude in degrees.
func (e Estimate) RollPitchYaw() (roll, pitch, yaw float64) {
	return ToEuler(e.Q)
}

// AHRSProvider defines an attitude estimation algorithm.
type AHRSProvider interface {
	Compute(m *Measurement) Estimate
	Estimate() Estimate
	Valid() bool
	CalcRollPitchHeading() (roll float64, pitch float64, heading float64)
	Reset()
}
