/*
Test out the complementary filter in ahrs/.
Pick a rate scenario, synthesize the matching gyro and accel data with the
simulated IMU, add some noise and bias if desired, then see how well the
filter replicates the "true" attitude.
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/Fritz179/fhgr-poisson/sim"
)

func parseFloatArrayString(str string, a *[3]float64) (err error) {
	parts := strings.Split(str, ",")
	if len(parts) != len(a) {
		return fmt.Errorf("want %d comma-separated values", len(a))
	}
	for i, s := range parts {
		a[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			break
		}
	}
	return
}

func main() {
	var (
		pdt, alpha, noise     float64
		gyroBiasStr, scenario string
		outFile               string
		gyroBias              [3]float64
		seed                  int64
	)

	const (
		defaultPdt      = 0.05
		pdtUsage        = "Sensor poll period, seconds"
		defaultAlpha    = ahrs.DefaultAlpha
		alphaUsage      = "Complementary filter weight of the gyro, 0..1"
		defaultNoise    = 0.0
		noiseUsage      = "Std dev of the noise added to every sensor channel"
		defaultGyroBias = "0,0,0"
		gyroBiasUsage   = "Amount of bias to add to gyro measurements, \"x,y,z\" °/s"
		defaultScenario = "bank"
		defaultOutFile  = "ahrs_sim.csv"
		outFileUsage    = "CSV file for the actual and estimated attitude, empty for none"
		defaultSeed     = 1
		seedUsage       = "Noise seed"
	)
	scenarioUsage := "Scenario to fly: " + sim.ScenarioNames()

	flag.Float64Var(&pdt, "pdt", defaultPdt, pdtUsage)
	flag.Float64Var(&alpha, "alpha", defaultAlpha, alphaUsage)
	flag.Float64Var(&noise, "noise", defaultNoise, noiseUsage)
	flag.Float64Var(&noise, "n", defaultNoise, noiseUsage)
	flag.StringVar(&gyroBiasStr, "gyro-bias", defaultGyroBias, gyroBiasUsage)
	flag.StringVar(&gyroBiasStr, "h", defaultGyroBias, gyroBiasUsage)
	flag.StringVar(&scenario, "scenario", defaultScenario, scenarioUsage)
	flag.StringVar(&scenario, "s", defaultScenario, scenarioUsage)
	flag.StringVar(&outFile, "out", defaultOutFile, outFileUsage)
	flag.Int64Var(&seed, "seed", defaultSeed, seedUsage)
	flag.Parse()

	sc, ok := sim.Scenarios[scenario]
	if !ok {
		log.Fatalf("No such scenario: %s; try %s\n", scenario, sim.ScenarioNames())
	}
	if err := parseFloatArrayString(gyroBiasStr, &gyroBias); err != nil {
		log.Fatalf("Error %v parsing %s\n", err, gyroBiasStr)
	}

	imu := sensors.NewSimIMU(seed)
	imu.Noise = noise
	imu.GyroBias = gyroBias
	s := &sim.Sim{
		IMU:       imu,
		Estimator: ahrs.NewComplementary(alpha),
		Period:    time.Duration(pdt * float64(time.Second)),
	}
	if outFile != "" {
		l, err := ahrs.NewAHRSLogger(outFile, sim.LogHeader...)
		if err != nil {
			log.Fatalln(err)
		}
		defer l.Close()
		s.Logger = l
	}

	fmt.Println("Simulation parameters:")
	fmt.Printf("\tScenario: %s, %s\n", sc.Name, sc.Duration())
	fmt.Printf("\tPoll period: %s\n", s.Period)
	fmt.Printf("\tAlpha: %.3f\n", alpha)
	fmt.Printf("\tNoise: %f\n", noise)
	fmt.Printf("\tGyro bias: %f,%f,%f °/s\n", gyroBias[0], gyroBias[1], gyroBias[2])

	res, err := s.Run(sc)
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Printf("Samples: %d\n", res.N)
	fmt.Printf("Roll error: max %.3f°, rms %.3f°, final %.3f°\n", res.MaxRollErr, res.RMSRollErr, res.FinalRollErr)
	fmt.Printf("Pitch error: max %.3f°, rms %.3f°, final %.3f°\n", res.MaxPitchErr, res.RMSPitchErr, res.FinalPitchErr)
}
