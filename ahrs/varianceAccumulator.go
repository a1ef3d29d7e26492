package ahrs

// NewVarianceAccumulator(init, decay float64) returns a function that,
// when passed a float, accumulates an exponentially weighted mean and
// variance with decay constant "decay".  The accumulator is initialized
// with an observation "init" and returns the current estimates of the
// effective number of observations, the mean and the variance.
// A decay of 1 weights every observation equally.
func NewVarianceAccumulator(init, decay float64) func(float64) (float64, float64, float64) {
	var (
		n float64 = 1
		m float64 = init
		s float64 = 0 // Weighted sum of squared deviations
	)

	f := func(obs float64) (float64, float64, float64) {
		n = 1 + decay*n
		d := obs - m
		m += d / n
		s = decay*s + d*(obs-m)
		return n, m, s / n
	}
	return f
}
