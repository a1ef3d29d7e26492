package sensors

import (
	"math/rand"
	"sync"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

// SimIMU makes up inertial samples for a rigid body turning at commanded
// body rates, for bench runs without hardware.
type SimIMU struct {
	Noise    float64    // Std dev of the noise added to every channel
	GyroBias [3]float64 // °/s
	Temp     float64    // °C

	mu     sync.Mutex
	q      quaternion.Quaternion
	rates  [3]float64
	rng    *rand.Rand
	now    func() time.Time
	t      time.Time
	closed bool
}

// NewSimIMU returns a level, stationary simulated sensor.
func NewSimIMU(seed int64) *SimIMU {
	return &SimIMU{
		Temp: 25,
		q:    ahrs.Identity,
		rng:  rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
}

// SetRates sets the true body rates, °/s.
func (s *SimIMU) SetRates(g1, g2, g3 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = [3]float64{g1, g2, g3}
}

// SetAttitude sets the true orientation.
func (s *SimIMU) SetAttitude(q quaternion.Quaternion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q = ahrs.Normalize(q)
}

// Attitude returns the true orientation.
func (s *SimIMU) Attitude() quaternion.Quaternion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q
}

// Read advances the true orientation to now and returns what a sensor would measure.
func (s *SimIMU) Read() (*IMUData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("SimIMU: read after close")
	}

	t := s.now()
	if !s.t.IsZero() {
		if dt := t.Sub(s.t).Seconds(); dt > 0 {
			s.q = ahrs.Integrate(s.q, s.rates[0], s.rates[1], s.rates[2], dt)
		}
	}
	s.t = t

	// Specific force of a body at rest is 1 G up, seen in the body frame
	up := quaternion.Prod(s.q.Conj(), quaternion.Quaternion{Z: 1}, s.q)

	return &IMUData{
		G1:   s.rates[0] + s.GyroBias[0] + s.noise(),
		G2:   s.rates[1] + s.GyroBias[1] + s.noise(),
		G3:   s.rates[2] + s.GyroBias[2] + s.noise(),
		A1:   up.X + s.noise(),
		A2:   up.Y + s.noise(),
		A3:   up.Z + s.noise(),
		Temp: s.Temp,
		T:    t,
	}, nil
}

func (s *SimIMU) noise() float64 {
	if s.Noise == 0 {
		return 0
	}
	return s.Noise * s.rng.NormFloat64()
}

// SetClock replaces the wall clock used to timestamp and integrate samples.
func (s *SimIMU) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close stops the simulated sensor.
func (s *SimIMU) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
