// Package sensors defines the inertial sample boundary shared by the IMU drivers.
package sensors

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// DefaultCalDataLocation is where calibration data is kept on the vehicle.
const DefaultCalDataLocation = "/etc/poisson_imu_cal.json"

// IMUData contains all the values measured by an MPU6050 or equivalent.
// Body frame: 1 is to nose, 2 is to left wing, 3 is up.
type IMUData struct {
	G1, G2, G3 float64   // Gyro rates, °/s
	A1, A2, A3 float64   // Accelerations, G
	Temp       float64   // °C
	T          time.Time // Time the sample was taken
}

// IMUReader is a source of inertial samples. Read blocks only for the duration
// of a single transfer.
type IMUReader interface {
	Read() (*IMUData, error)
	Close() error
}

// IMUCalData holds the hardware biases subtracted from raw readings.
type IMUCalData struct {
	A01, A02, A03 float64 // Accelerometer hardware bias, G
	G01, G02, G03 float64 // Gyro hardware bias, °/s
	N             int     // Number of samples the biases were computed from
}

// Reset clears all biases.
func (d *IMUCalData) Reset() {
	*d = IMUCalData{}
}

// Apply subtracts the biases from a sample in place.
func (d *IMUCalData) Apply(m *IMUData) {
	m.A1 -= d.A01
	m.A2 -= d.A02
	m.A3 -= d.A03
	m.G1 -= d.G01
	m.G2 -= d.G02
	m.G3 -= d.G03
}

// Save writes the calibration data as JSON to fn.
func (d *IMUCalData) Save(fn string) error {
	calData, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error marshaling imu calibration data")
	}
	if err := os.WriteFile(fn, calData, os.FileMode(0644)); err != nil {
		return errors.Wrapf(err, "error saving imu calibration data to %s", fn)
	}
	return nil
}

// Load reads calibration data previously written by Save.
func (d *IMUCalData) Load(fn string) error {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return errors.Wrapf(err, "error reading imu calibration data from %s", fn)
	}
	if err := json.Unmarshal(buf, d); err != nil {
		return errors.Wrapf(err, "error reading imu calibration data from %s", fn)
	}
	return nil
}
