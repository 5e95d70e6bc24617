package analysis

import (
	"math"
	"testing"
)

func TestDominantFrequency(t *testing.T) {
	dt := 0.01
	data := make([]float64, 400)
	for i := range data {
		data[i] = 3 + 0.5*math.Sin(2*math.Pi*5*float64(i)*dt)
	}
	freq, amp := DominantFrequency(data, dt)
	if math.Abs(freq-5) > 0.01 {
		t.Errorf("expected 5 Hz, got %f", freq)
	}
	if math.Abs(amp-0.5) > 0.01 {
		t.Errorf("expected amplitude 0.5, got %f", amp)
	}
}

func TestDominantFrequencyConstant(t *testing.T) {
	data := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	if f, a := DominantFrequency(data, 0.1); f != 0 || a != 0 {
		t.Errorf("constant signal: got %f Hz amplitude %f", f, a)
	}
	if f, _ := DominantFrequency(nil, 0.1); f != 0 {
		t.Error("empty signal should give 0")
	}
}

func TestSpectrumFrequencies(t *testing.T) {
	freqs, amp := Spectrum(make([]float64, 10), 0.5)
	if len(freqs) != 6 || len(amp) != 6 {
		t.Fatalf("expected 6 bins, got %d", len(freqs))
	}
	if freqs[5] != 1 {
		t.Errorf("nyquist bin: expected 1 Hz, got %f", freqs[5])
	}
}

func TestStepResponseDecay(t *testing.T) {
	dt := 0.01
	e := make([]float64, 300)
	for i := range e {
		ti := float64(i) * dt
		e[i] = 0.1 * math.Exp(-5*ti) * math.Cos(10*ti)
	}
	r := StepResponse(e, dt, 0.005)

	if r.SettlingTime <= 0 || r.SettlingTime > 1 {
		t.Errorf("settling time %f", r.SettlingTime)
	}
	if r.Overshoot <= 0 || r.Overshoot >= 1 {
		t.Errorf("overshoot %f", r.Overshoot)
	}
	if math.Abs(r.PeakError-0.1) > 1e-12 {
		t.Errorf("peak %f", r.PeakError)
	}
	if math.Abs(r.SteadyState) > 1e-3 {
		t.Errorf("steady state %f", r.SteadyState)
	}
}

func TestStepResponseNeverSettles(t *testing.T) {
	e := []float64{1, 1, 1, 1}
	r := StepResponse(e, 0.1, 0.5)
	if r.SettlingTime != -1 {
		t.Errorf("expected -1, got %f", r.SettlingTime)
	}
	if r.SteadyState != 1 || r.Overshoot != 0 {
		t.Errorf("got %+v", r)
	}
}
