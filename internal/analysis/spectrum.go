package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spectrum returns the one-sided amplitude spectrum of data sampled every dt
// seconds, with the mean removed. freqs[i] is the frequency of amp[i] in Hz.
func Spectrum(data []float64, dt float64) (freqs, amp []float64) {
	n := len(data)
	if n < 2 || dt <= 0 {
		return nil, nil
	}
	centered := make([]float64, n)
	copy(centered, data)
	floats.AddConst(-stat.Mean(data, nil), centered)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)

	freqs = make([]float64, len(coeff))
	amp = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) / dt
		amp[i] = 2 * cmplx.Abs(c) / float64(n)
	}
	return freqs, amp
}

// DominantFrequency is the non-zero frequency with the largest amplitude, or
// 0 when the signal has no oscillation.
func DominantFrequency(data []float64, dt float64) (freq, amp float64) {
	freqs, a := Spectrum(data, dt)
	if len(a) < 2 {
		return 0, 0
	}
	i := floats.MaxIdx(a[1:]) + 1
	if a[i] == 0 {
		return 0, 0
	}
	return freqs[i], a[i]
}
