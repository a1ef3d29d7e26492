package ahrsweb

import (
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/westphae/quaternion"
)

const Port = 8000

// AHRSData is one monitor frame, published by either end of the link.
type AHRSData struct {
	Source string  // "operator" or "vehicle"
	T      float64 // Unix time, s

	// Displayed orientation
	E0, E1, E2, E3       float64 // Quaternion rotating earth frame to aircraft frame
	Roll, Pitch, Heading float64 // °

	// Measurement variables
	A1, A2, A3 float64 // Accelerometer readings, G, aircraft frame
	B1, B2, B3 float64 // Gyro rates in roll, pitch, heading axes, °/s, aircraft frame
	Temp       float64 // °C

	// Operator setpoint
	TE0, TE1, TE2, TE3                     float64 // Target quaternion
	TargetRoll, TargetPitch, TargetHeading float64 // °
	Throttle                               float64
	Law                                    int
	Gains                                  [3]float64

	// Link health
	Status string
	Stale  bool

	// Vehicle outputs
	Left, Middle, Right float64 // Surface outputs, [-1, 1]
	Authority           bool

	FrameMS float64 // Time spent producing this frame, ms
}

// SetOrientation fills the displayed orientation from q.
func (d *AHRSData) SetOrientation(q quaternion.Quaternion) {
	d.E0, d.E1, d.E2, d.E3 = q.W, q.X, q.Y, q.Z
	d.Roll, d.Pitch, d.Heading = ahrs.ToEuler(q)
}

// SetTarget fills the operator setpoint orientation from q.
func (d *AHRSData) SetTarget(q quaternion.Quaternion) {
	d.TE0, d.TE1, d.TE2, d.TE3 = q.W, q.X, q.Y, q.Z
	d.TargetRoll, d.TargetPitch, d.TargetHeading = ahrs.ToEuler(q)
}

// SetTime stamps the frame.
func (d *AHRSData) SetTime(t time.Time) {
	d.T = float64(t.UnixNano()/1000) / 1e6
}

// KeyEvent is operator input sent by a monitor client, e.g. {"key":"w","down":true}.
type KeyEvent struct {
	Key  string `json:"key"`
	Down bool   `json:"down"`
}
