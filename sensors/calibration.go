package sensors

import (
	"log"
	"math"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
)

const (
	// Calibration variance tolerances
	MaxGyroVar   = 10.0 // (°/s)²
	MaxAccelVar  = 0.1  // G²
	maxAccelBias = 0.5  // G
)

// Calibrate reads n samples from a stationary, level sensor, waiting interval
// between reads, and returns the gyro and accelerometer biases. The sensor is
// expected to read (0, 0, 1) G and zero rates.
func Calibrate(r IMUReader, n int, interval time.Duration) (*IMUCalData, error) {
	if n < 2 {
		return nil, errors.Errorf("Calibration Error: need at least 2 samples, got %d", n)
	}

	var (
		accums [6]func(float64) (float64, float64, float64)
		means  [6]float64
		vars   [6]float64
	)
	for i := 0; i < n; i++ {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		d, err := r.Read()
		if err != nil {
			return nil, errors.Wrapf(err, "Calibration Error: read %d failed", i)
		}
		obs := [6]float64{d.G1, d.G2, d.G3, d.A1, d.A2, d.A3 - 1}
		for j, x := range obs {
			if accums[j] == nil {
				accums[j] = ahrs.NewVarianceAccumulator(x, 1)
				means[j] = x
				continue
			}
			_, means[j], vars[j] = accums[j](x)
		}
	}

	log.Printf("Calibration: %d values collected\n", n)
	log.Printf("Calibration: gyro variance:  %f %f %f\n", vars[0], vars[1], vars[2])
	log.Printf("Calibration: accel variance: %f %f %f\n", vars[3], vars[4], vars[5])

	if math.Abs(means[3]) > maxAccelBias || math.Abs(means[4]) > maxAccelBias || math.Abs(means[5]) > maxAccelBias {
		return nil, errors.Errorf("Calibration Error: sensor is maxing out or not level: %6f %6f %6f",
			means[3], means[4], means[5])
	}
	if vars[0] > MaxGyroVar || vars[1] > MaxGyroVar || vars[2] > MaxGyroVar ||
		vars[3] > MaxAccelVar || vars[4] > MaxAccelVar || vars[5] > MaxAccelVar {
		return nil, errors.New("Calibration Error: sensor was not inertial during calibration")
	}

	cal := &IMUCalData{
		G01: means[0], G02: means[1], G03: means[2],
		A01: means[3], A02: means[4], A03: means[5],
		N: n,
	}
	log.Printf("Gyro Calibration: %6f, %6f, %6f\n", cal.G01, cal.G02, cal.G03)
	log.Printf("Accel Calibration: %6f, %6f, %6f\n", cal.A01, cal.A02, cal.A03)
	return cal, nil
}
