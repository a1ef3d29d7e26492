/*
Package sim tests the attitude estimator against a simulated IMU.
Define a rate profile in code, synthesize the matching gyro and accel data,
add some noise and bias if desired, then see how closely the estimator
recovers the "true" attitude.
*/
package sim

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/pkg/errors"
)

// Segment holds constant body rates, °/s, for a while.
type Segment struct {
	Duration time.Duration
	Rates    [3]float64
}

// Scenario is a sequence of rate segments starting level.
type Scenario struct {
	Name     string
	Segments []Segment
}

// Scenarios are the built-in rate profiles.
var Scenarios = map[string]Scenario{
	"level": {Name: "level", Segments: []Segment{{Duration: 10 * time.Second}}},
	"bank": {Name: "bank", Segments: []Segment{
		{Duration: 2 * time.Second, Rates: [3]float64{15, 0, 0}},
		{Duration: 3 * time.Second},
		{Duration: 2 * time.Second, Rates: [3]float64{-15, 0, 0}},
		{Duration: 3 * time.Second},
	}},
	"climb": {Name: "climb", Segments: []Segment{
		{Duration: 2 * time.Second, Rates: [3]float64{0, 10, 0}},
		{Duration: 3 * time.Second},
		{Duration: 2 * time.Second, Rates: [3]float64{0, -10, 0}},
		{Duration: 3 * time.Second},
	}},
	"turn": {Name: "turn", Segments: []Segment{
		{Duration: 6 * time.Second, Rates: [3]float64{0, 0, 30}},
		{Duration: 4 * time.Second},
	}},
}

// ScenarioNames lists the built-in scenarios for usage messages.
func ScenarioNames() string {
	names := make([]string, 0, len(Scenarios))
	for k := range Scenarios {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Duration returns the total length of the scenario.
func (sc Scenario) Duration() (d time.Duration) {
	for _, s := range sc.Segments {
		d += s.Duration
	}
	return
}

// RatesAt returns the rates in effect at t into the scenario.
func (sc Scenario) RatesAt(t time.Duration) [3]float64 {
	for _, s := range sc.Segments {
		if t < s.Duration {
			return s.Rates
		}
		t -= s.Duration
	}
	return [3]float64{}
}

// Result summarizes how far the estimate strayed from the truth, °.
type Result struct {
	N                           int
	MaxRollErr, MaxPitchErr     float64
	RMSRollErr, RMSPitchErr     float64
	FinalRollErr, FinalPitchErr float64
}

// Sim drives an estimator from a simulated IMU at a fixed period.
type Sim struct {
	IMU       *sensors.SimIMU
	Estimator ahrs.AHRSProvider
	Period    time.Duration
	Logger    *ahrs.AHRSLogger // Optional; see LogHeader
}

// LogHeader are the columns written to Sim.Logger.
var LogHeader = []string{
	"T", "DT",
	"RollActual", "PitchActual", "YawActual",
	"Roll", "Pitch", "Yaw",
	"A1", "A2", "A3", "B1", "B2", "B3",
}

// Run flies the scenario. Time is simulated, so it returns immediately.
func (s *Sim) Run(sc Scenario) (res Result, err error) {
	if s.Period <= 0 {
		return res, errors.Errorf("Sim: bad period %s", s.Period)
	}
	t0 := time.Unix(0, 0)
	now := t0
	s.IMU.SetClock(func() time.Time { return now })

	var sumR, sumP float64
	for el := time.Duration(0); el <= sc.Duration(); el += s.Period {
		now = t0.Add(el)
		r := sc.RatesAt(el)
		s.IMU.SetRates(r[0], r[1], r[2])
		d, err := s.IMU.Read()
		if err != nil {
			return res, errors.Wrapf(err, "Sim: read at %s", el)
		}
		e := s.Estimator.Compute(&ahrs.Measurement{
			A1: d.A1, A2: d.A2, A3: d.A3,
			B1: d.G1, B2: d.G2, B3: d.G3,
			Temp: d.Temp,
			T:    d.T,
		})

		rollA, pitchA, yawA := ahrs.ToEuler(s.IMU.Attitude())
		roll, pitch, yaw := e.RollPitchYaw()
		dr, dp := ahrs.WrapYaw(roll-rollA), pitch-pitchA
		res.N++
		res.MaxRollErr = math.Max(res.MaxRollErr, math.Abs(dr))
		res.MaxPitchErr = math.Max(res.MaxPitchErr, math.Abs(dp))
		sumR += dr * dr
		sumP += dp * dp
		res.FinalRollErr, res.FinalPitchErr = dr, dp

		if s.Logger != nil {
			if err := s.Logger.Log(el.Seconds(), e.DT, rollA, pitchA, yawA, roll, pitch, yaw,
				d.A1, d.A2, d.A3, d.G1, d.G2, d.G3); err != nil {
				return res, err
			}
		}
	}
	res.RMSRollErr = math.Sqrt(sumR / float64(res.N))
	res.RMSPitchErr = math.Sqrt(sumP / float64(res.N))
	return res, nil
}
