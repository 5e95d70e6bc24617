// Package model supplies the kinematic and dynamic quantities the
// whole-body controller consumes each cycle.
//
// [RobotState] is the provider contract. [Biped] is a reference floating
// base robot with exact closed-form dynamics, used by the CLI runner and the
// tests.
package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NumFloatingBase is the number of unactuated base coordinates.
const NumFloatingBase = 6

var (
	// ErrUnknownBody indicates a body name the model does not define.
	ErrUnknownBody = errors.New("model: unknown body")

	// ErrStateDimension indicates a state vector of the wrong size.
	ErrStateDimension = errors.New("model: state dimension mismatch")
)

// Actuator is a joint motor with its effort limits.
type Actuator struct {
	Name      string
	Joint     int // generalized velocity index driven by the actuator
	EffortMin float64
	EffortMax float64
}

// RobotState is the kinematics/dynamics provider for the current
// configuration and velocity. All spatial quantities are expressed in the
// world frame and ordered [angular; linear].
type RobotState interface {
	NumVelocities() int
	CoordNames() []string
	HasBody(name string) bool

	Mass() float64
	Gravity() r3.Vec
	COM() r3.Vec

	// MassMatrix is nv x nv, BiasTerm is nv (gravity and Coriolis).
	MassMatrix() *mat.Dense
	BiasTerm() *mat.VecDense

	// BodyJacobian is 6 x nv at the body origin.
	BodyJacobian(body string) (*mat.Dense, error)
	BodyJacobianDotTimesV(body string) (*mat.VecDense, error)

	// PointJacobian is 3P x nv for points given in the body frame.
	PointJacobian(body string, points []r3.Vec) (*mat.Dense, error)
	PointJacobianDotTimesV(body string, points []r3.Vec) (*mat.VecDense, error)

	BodyPose(body string) (r3.Vec, r3.Rotation, error)

	COMJacobian() *mat.Dense
	COMJacobianDotTimesV() *mat.VecDense

	// CentroidalMomentumMatrix is 6 x nv, momentum about the CoM.
	CentroidalMomentumMatrix() *mat.Dense
	CentroidalMomentumMatrixDotTimesV() *mat.VecDense

	Actuators() []Actuator
	// ActuatorSelection is the nv x na map from actuator efforts to generalized forces.
	ActuatorSelection() *mat.Dense
}
