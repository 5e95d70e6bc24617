package control

import "gonum.org/v1/gonum/spatial/r3"

// PID regulates the CoM toward Target. The derivative term acts on the
// measured CoM velocity, so there is no derivative kick on target changes.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   r3.Vec
	integral r3.Vec
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd float64, target r3.Vec) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		first:  true,
	}
}

func (p *PID) Compute(com, vel r3.Vec, t float64) r3.Vec {
	err := r3.Sub(p.Target, com)

	if p.first {
		p.prevT = t
		p.first = false
	} else if dt := t - p.prevT; dt > 0 {
		p.integral = r3.Add(p.integral, r3.Scale(dt, err))
		p.prevT = t
	}

	acc := r3.Scale(p.Kp, err)
	acc = r3.Add(acc, r3.Scale(p.Ki, p.integral))
	return r3.Sub(acc, r3.Scale(p.Kd, vel))
}

// Reset clears the integral state
func (p *PID) Reset() {
	p.integral = r3.Vec{}
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":      p.Kp,
		"Ki":      p.Ki,
		"Kd":      p.Kd,
		"TargetX": p.Target.X,
		"TargetY": p.Target.Y,
		"TargetZ": p.Target.Z,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "TargetX":
		p.Target.X = value
	case "TargetY":
		p.Target.Y = value
	case "TargetZ":
		p.Target.Z = value
	}
}
