package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	BodyTorso     = "torso"
	BodyLeftFoot  = "left_foot"
	BodyRightFoot = "right_foot"
)

// BipedParams configures the reference biped.
type BipedParams struct {
	TorsoMass     float64
	TorsoInertia  r3.Vec // principal moments in the torso frame
	HipOffset     float64
	StandHeight   float64
	FootHalfLen   float64
	FootHalfWidth float64
	Armature      float64
	EffortLimit   float64
	Gravity       float64
}

func DefaultBipedParams() BipedParams {
	return BipedParams{
		TorsoMass:     40,
		TorsoInertia:  r3.Vec{X: 2.0, Y: 1.6, Z: 0.8},
		HipOffset:     0.1,
		StandHeight:   0.9,
		FootHalfLen:   0.1,
		FootHalfWidth: 0.05,
		Armature:      0.1,
		EffortLimit:   1000,
		Gravity:       9.81,
	}
}

// Biped is a floating rigid torso with two massless legs. Each leg is a
// chain of three prismatic joints along the torso x, y and z axes ending in
// a flat foot that keeps the torso orientation. Joint rotors carry an
// armature inertia. The torso origin is the CoM of the whole robot.
//
// Generalized velocity: [w_torso (world); v_com (world); left xyz; right xyz].
type Biped struct {
	params BipedParams

	effortMin, effortMax float64

	pos   r3.Vec
	rot   quat.Number
	omega r3.Vec
	vel   r3.Vec
	q     [6]float64
	qd    [6]float64
}

func NewBiped(p BipedParams) *Biped {
	b := &Biped{params: p, effortMin: -p.EffortLimit, effortMax: p.EffortLimit}
	b.Reset()
	return b
}

// Reset puts the robot in a static stance with both feet flat on z = 0.
func (b *Biped) Reset() {
	b.pos = r3.Vec{Z: b.params.StandHeight}
	b.rot = quat.Number{Real: 1}
	b.omega, b.vel = r3.Vec{}, r3.Vec{}
	b.q = [6]float64{0, 0, -b.params.StandHeight, 0, 0, -b.params.StandHeight}
	b.qd = [6]float64{}
}

// PlaceStance moves the stance foot under the CoM and raises the other foot
// by lift. The torso does not move.
func (b *Biped) PlaceStance(stance string, lift float64) error {
	leg := b.legIndex(stance)
	if leg < 0 {
		return errors.Wrapf(ErrUnknownBody, "%s is not a foot", stance)
	}
	b.q[3*leg] = 0
	b.q[3*leg+1] = -legSide(leg) * b.params.HipOffset
	b.q[3*(1-leg)+2] += lift
	return nil
}

func (b *Biped) Params() BipedParams { return b.params }

func (b *Biped) NumVelocities() int { return NumFloatingBase + 6 }

// NumPositions counts position coordinates: com xyz, quaternion, joints.
func (b *Biped) NumPositions() int { return 3 + 4 + 6 }

func (b *Biped) CoordNames() []string {
	return []string{
		"base_wx", "base_wy", "base_wz", "base_vx", "base_vy", "base_vz",
		"l_leg_x", "l_leg_y", "l_leg_z", "r_leg_x", "r_leg_y", "r_leg_z",
	}
}

func (b *Biped) HasBody(name string) bool {
	switch name {
	case BodyTorso, BodyLeftFoot, BodyRightFoot:
		return true
	}
	return false
}

func (b *Biped) Mass() float64   { return b.params.TorsoMass }
func (b *Biped) Gravity() r3.Vec { return r3.Vec{Z: -b.params.Gravity} }
func (b *Biped) COM() r3.Vec     { return b.pos }

// Positions returns [com; quaternion (w x y z); joints].
func (b *Biped) Positions() []float64 {
	x := []float64{b.pos.X, b.pos.Y, b.pos.Z, b.rot.Real, b.rot.Imag, b.rot.Jmag, b.rot.Kmag}
	return append(x, b.q[:]...)
}

func (b *Biped) Velocity() []float64 {
	v := []float64{b.omega.X, b.omega.Y, b.omega.Z, b.vel.X, b.vel.Y, b.vel.Z}
	return append(v, b.qd[:]...)
}

func (b *Biped) SetPositions(x []float64) error {
	if len(x) != b.NumPositions() {
		return errors.Wrapf(ErrStateDimension, "positions have %d entries, want %d", len(x), b.NumPositions())
	}
	b.pos = r3.Vec{X: x[0], Y: x[1], Z: x[2]}
	r := quat.Number{Real: x[3], Imag: x[4], Jmag: x[5], Kmag: x[6]}
	n := quat.Abs(r)
	if n == 0 {
		return errors.Wrap(ErrStateDimension, "zero quaternion")
	}
	b.rot = quat.Scale(1/n, r)
	copy(b.q[:], x[7:])
	return nil
}

func (b *Biped) SetVelocity(v []float64) error {
	if len(v) != b.NumVelocities() {
		return errors.Wrapf(ErrStateDimension, "velocity has %d entries, want %d", len(v), b.NumVelocities())
	}
	b.omega = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	b.vel = r3.Vec{X: v[3], Y: v[4], Z: v[5]}
	copy(b.qd[:], v[6:])
	return nil
}

// Advance integrates positions over dt with the current velocity.
func (b *Biped) Advance(dt float64) {
	b.pos = r3.Add(b.pos, r3.Scale(dt, b.vel))
	half := r3.Scale(dt/2, b.omega)
	dq := quat.Exp(quat.Number{Imag: half.X, Jmag: half.Y, Kmag: half.Z})
	b.rot = quat.Mul(dq, b.rot)
	b.rot = quat.Scale(1/quat.Abs(b.rot), b.rot)
	for i := range b.q {
		b.q[i] += dt * b.qd[i]
	}
}

// Rotation returns the torso orientation.
func (b *Biped) Rotation() r3.Rotation { return r3.Rotation(b.rot) }

// Actuators drive the six leg joints.
func (b *Biped) Actuators() []Actuator {
	names := b.CoordNames()
	acts := make([]Actuator, 6)
	for i := range acts {
		acts[i] = Actuator{
			Name:      names[NumFloatingBase+i],
			Joint:     NumFloatingBase + i,
			EffortMin: b.effortMin,
			EffortMax: b.effortMax,
		}
	}
	return acts
}

// SetEffortLimits overrides the effort window of every actuator.
func (b *Biped) SetEffortLimits(lo, hi float64) {
	b.effortMin, b.effortMax = lo, hi
}

func (b *Biped) ActuatorSelection() *mat.Dense {
	s := mat.NewDense(b.NumVelocities(), 6, nil)
	for i := 0; i < 6; i++ {
		s.Set(NumFloatingBase+i, i, 1)
	}
	return s
}

func (b *Biped) MassMatrix() *mat.Dense {
	nv := b.NumVelocities()
	m := mat.NewDense(nv, nv, nil)
	iw := b.worldInertia()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, iw[r][c])
		}
		m.Set(3+r, 3+r, b.params.TorsoMass)
	}
	for i := 0; i < 6; i++ {
		m.Set(NumFloatingBase+i, NumFloatingBase+i, b.params.Armature)
	}
	return m
}

func (b *Biped) BiasTerm() *mat.VecDense {
	h := mat.NewVecDense(b.NumVelocities(), nil)
	gyro := r3.Cross(b.omega, mulMat3(b.worldInertia(), b.omega))
	weight := r3.Scale(-b.params.TorsoMass, b.Gravity())
	setVec3(h, 0, gyro)
	setVec3(h, 3, weight)
	return h
}

func (b *Biped) BodyPose(body string) (r3.Vec, r3.Rotation, error) {
	rot := b.Rotation()
	switch body {
	case BodyTorso:
		return b.pos, rot, nil
	case BodyLeftFoot, BodyRightFoot:
		leg := b.legIndex(body)
		return r3.Add(b.pos, rot.Rotate(b.footOffset(leg))), rot, nil
	}
	return r3.Vec{}, r3.Rotation{}, errors.Wrap(ErrUnknownBody, body)
}

func (b *Biped) BodyJacobian(body string) (*mat.Dense, error) {
	if !b.HasBody(body) {
		return nil, errors.Wrap(ErrUnknownBody, body)
	}
	j := mat.NewDense(6, b.NumVelocities(), nil)
	for i := 0; i < 3; i++ {
		j.Set(i, i, 1)
	}
	lin, err := b.PointJacobian(body, []r3.Vec{{}})
	if err != nil {
		return nil, err
	}
	j.Slice(3, 6, 0, b.NumVelocities()).(*mat.Dense).Copy(lin)
	return j, nil
}

func (b *Biped) BodyJacobianDotTimesV(body string) (*mat.VecDense, error) {
	lin, err := b.PointJacobianDotTimesV(body, []r3.Vec{{}})
	if err != nil {
		return nil, err
	}
	jdv := mat.NewVecDense(6, nil)
	jdv.SliceVec(3, 6).(*mat.VecDense).CopyVec(lin)
	return jdv, nil
}

// PointJacobian maps generalized velocity to the world velocity of points
// fixed in the body frame: v + w x r + R*qd_leg.
func (b *Biped) PointJacobian(body string, points []r3.Vec) (*mat.Dense, error) {
	if !b.HasBody(body) {
		return nil, errors.Wrap(ErrUnknownBody, body)
	}
	nv := b.NumVelocities()
	j := mat.NewDense(3*len(points), nv, nil)
	rot := b.Rotation()
	rm := rotMat(rot)
	leg := b.legIndex(body)
	for k, p := range points {
		r := rot.Rotate(r3.Add(b.footOffset(leg), p))
		skew := skew3(r)
		for i := 0; i < 3; i++ {
			for c := 0; c < 3; c++ {
				j.Set(3*k+i, c, -skew[i][c])
			}
			j.Set(3*k+i, 3+i, 1)
			if leg >= 0 {
				for c := 0; c < 3; c++ {
					j.Set(3*k+i, NumFloatingBase+3*leg+c, rm[i][c])
				}
			}
		}
	}
	return j, nil
}

// PointJacobianDotTimesV is w x (w x r) + 2 w x (R*qd_leg).
func (b *Biped) PointJacobianDotTimesV(body string, points []r3.Vec) (*mat.VecDense, error) {
	if !b.HasBody(body) {
		return nil, errors.Wrap(ErrUnknownBody, body)
	}
	jdv := mat.NewVecDense(3*len(points), nil)
	rot := b.Rotation()
	leg := b.legIndex(body)
	var legVel r3.Vec
	if leg >= 0 {
		legVel = rot.Rotate(r3.Vec{X: b.qd[3*leg], Y: b.qd[3*leg+1], Z: b.qd[3*leg+2]})
	}
	for k, p := range points {
		r := rot.Rotate(r3.Add(b.footOffset(leg), p))
		a := r3.Cross(b.omega, r3.Cross(b.omega, r))
		a = r3.Add(a, r3.Scale(2, r3.Cross(b.omega, legVel)))
		setVec3(jdv, 3*k, a)
	}
	return jdv, nil
}

func (b *Biped) COMJacobian() *mat.Dense {
	j := mat.NewDense(3, b.NumVelocities(), nil)
	for i := 0; i < 3; i++ {
		j.Set(i, 3+i, 1)
	}
	return j
}

func (b *Biped) COMJacobianDotTimesV() *mat.VecDense {
	return mat.NewVecDense(3, nil)
}

// CentroidalMomentumMatrix maps velocity to [angular; linear] momentum about
// the CoM. The legs are massless so only the torso contributes.
func (b *Biped) CentroidalMomentumMatrix() *mat.Dense {
	a := mat.NewDense(6, b.NumVelocities(), nil)
	iw := b.worldInertia()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			a.Set(r, c, iw[r][c])
		}
		a.Set(3+r, 3+r, b.params.TorsoMass)
	}
	return a
}

func (b *Biped) CentroidalMomentumMatrixDotTimesV() *mat.VecDense {
	adv := mat.NewVecDense(6, nil)
	setVec3(adv, 0, r3.Cross(b.omega, mulMat3(b.worldInertia(), b.omega)))
	return adv
}

// legIndex returns 0 for the left foot, 1 for the right foot and -1 for the torso.
func (b *Biped) legIndex(body string) int {
	switch body {
	case BodyLeftFoot:
		return 0
	case BodyRightFoot:
		return 1
	}
	return -1
}

// footOffset is the foot origin in the torso frame, zero for the torso itself.
func (b *Biped) footOffset(leg int) r3.Vec {
	if leg < 0 {
		return r3.Vec{}
	}
	return r3.Vec{
		X: b.q[3*leg],
		Y: legSide(leg)*b.params.HipOffset + b.q[3*leg+1],
		Z: b.q[3*leg+2],
	}
}

// legSide is +1 for the left leg and -1 for the right leg.
func legSide(leg int) float64 {
	if leg == 1 {
		return -1
	}
	return 1
}

// FootCorners returns the four sole corners in the foot frame.
func (b *Biped) FootCorners() []r3.Vec {
	l, w := b.params.FootHalfLen, b.params.FootHalfWidth
	return []r3.Vec{
		{X: l, Y: w}, {X: l, Y: -w},
		{X: -l, Y: w}, {X: -l, Y: -w},
	}
}

func (b *Biped) worldInertia() [3][3]float64 {
	rm := rotMat(b.Rotation())
	d := [3]float64{b.params.TorsoInertia.X, b.params.TorsoInertia.Y, b.params.TorsoInertia.Z}
	var iw [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			for k := 0; k < 3; k++ {
				iw[r][c] += rm[r][k] * d[k] * rm[c][k]
			}
		}
	}
	return iw
}

func rotMat(rot r3.Rotation) [3][3]float64 {
	cols := [3]r3.Vec{
		rot.Rotate(r3.Vec{X: 1}),
		rot.Rotate(r3.Vec{Y: 1}),
		rot.Rotate(r3.Vec{Z: 1}),
	}
	var m [3][3]float64
	for c, v := range cols {
		m[0][c], m[1][c], m[2][c] = v.X, v.Y, v.Z
	}
	return m
}

func skew3(v r3.Vec) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

func mulMat3(m [3][3]float64, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func setVec3(v *mat.VecDense, at int, x r3.Vec) {
	v.SetVec(at, x.X)
	v.SetVec(at+1, x.Y)
	v.SetVec(at+2, x.Z)
}

var _ RobotState = (*Biped)(nil)

// isFinite reports whether every coordinate of the state is finite.
func (b *Biped) isFinite() bool {
	for _, x := range append(b.Positions(), b.Velocity()...) {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Valid reports whether the state is finite.
func (b *Biped) Valid() bool { return b.isFinite() }
