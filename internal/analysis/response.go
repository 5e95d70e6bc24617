package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Response summarizes how a tracking error decays.
type Response struct {
	// SettlingTime is the first time after which |e| stays within the band,
	// or -1 if it never settles.
	SettlingTime float64
	// Overshoot is the largest excursion past zero opposite to the initial
	// error, as a fraction of |e(0)|. Zero when e(0) is zero.
	Overshoot float64
	// PeakError is max |e|.
	PeakError float64
	// SteadyState is the mean of e over the last tenth of the signal.
	SteadyState float64
}

// StepResponse analyzes an error signal sampled every dt seconds against a
// settling band.
func StepResponse(e []float64, dt, band float64) Response {
	r := Response{SettlingTime: -1}
	if len(e) == 0 {
		return r
	}

	settled := len(e)
	for i := len(e) - 1; i >= 0; i-- {
		if math.Abs(e[i]) > band {
			break
		}
		settled = i
	}
	if settled < len(e) {
		r.SettlingTime = float64(settled) * dt
	}

	e0 := e[0]
	for _, v := range e {
		r.PeakError = math.Max(r.PeakError, math.Abs(v))
		if e0 != 0 && v*e0 < 0 {
			r.Overshoot = math.Max(r.Overshoot, math.Abs(v)/math.Abs(e0))
		}
	}

	tail := len(e) / 10
	if tail == 0 {
		tail = 1
	}
	r.SteadyState = stat.Mean(e[len(e)-tail:], nil)
	return r
}
