package sensors

import (
	"math"

	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"
)

const mountTolerance = 1e-3

// Mount rotates sensor-frame readings into the vehicle body frame.
// Row i of the matrix gives body axis i in sensor coordinates.
type Mount struct {
	m *matrix.DenseMatrix
}

// IdentityMount is a sensor mounted with its axes along the body axes.
func IdentityMount() *Mount {
	return &Mount{m: matrix.Eye(3)}
}

// NewMount builds a Mount from a 3x3 row-major matrix. The matrix must be a
// proper rotation: orthonormal with determinant +1.
func NewMount(rows [][]float64) (*Mount, error) {
	if len(rows) != 3 {
		return nil, errors.Errorf("Mount: need 3 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if len(r) != 3 {
			return nil, errors.Errorf("Mount: row %d has %d columns, need 3", i, len(r))
		}
	}
	m := matrix.MakeDenseMatrixStacked(rows)
	if d := m.Det(); math.Abs(d-1) > mountTolerance {
		return nil, errors.Errorf("Mount: determinant %f is not 1, not a rotation", d)
	}
	mmt := matrix.Product(m, m.Transpose())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(mmt.Get(i, j)-want) > mountTolerance {
				return nil, errors.New("Mount: matrix is not orthonormal")
			}
		}
	}
	return &Mount{m: m}, nil
}

// Rotate returns the body-frame image of the sensor-frame vector (x1, x2, x3).
func (mt *Mount) Rotate(x1, x2, x3 float64) (y1, y2, y3 float64) {
	v := matrix.MakeDenseMatrix([]float64{x1, x2, x3}, 3, 1)
	r := matrix.Product(mt.m, v)
	return r.Get(0, 0), r.Get(1, 0), r.Get(2, 0)
}

// Apply rotates the accelerometer and gyro vectors of a sample in place.
func (mt *Mount) Apply(d *IMUData) {
	d.A1, d.A2, d.A3 = mt.Rotate(d.A1, d.A2, d.A3)
	d.G1, d.G2, d.G3 = mt.Rotate(d.G1, d.G2, d.G3)
}

// CorrectedReader applies calibration biases and then the mount rotation to
// every sample read from the wrapped reader.
type CorrectedReader struct {
	IMUReader
	Cal   IMUCalData
	Mount *Mount
}

// NewCorrectedReader wraps r. A nil mount is the identity.
func NewCorrectedReader(r IMUReader, cal IMUCalData, mount *Mount) *CorrectedReader {
	if mount == nil {
		mount = IdentityMount()
	}
	return &CorrectedReader{IMUReader: r, Cal: cal, Mount: mount}
}

// Read returns the next corrected sample.
func (c *CorrectedReader) Read() (*IMUData, error) {
	d, err := c.IMUReader.Read()
	if err != nil {
		return nil, err
	}
	c.Cal.Apply(d)
	c.Mount.Apply(d)
	return d, nil
}
