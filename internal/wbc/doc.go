// Package wbc defines the data exchanged with the whole-body QP controller.
//
// The package holds the per-cycle descriptors and results:
//
//   - [ContactInformation]: a contacting body, its contact points and friction basis
//   - [DesiredBodyAcceleration]: a tracked task-space body motion and its weight
//   - [QPInput]: everything the controller consumes for one cycle
//   - [QPOutput]: accelerations, joint torques and resolved contact wrenches
//   - [Status]: the discrete cycle result code
//
// Spatial vectors (twists, accelerations, wrenches, momenta) are ordered
// [angular; linear]. The first six generalized coordinates of a robot are
// the unactuated floating base.
//
// # Example
//
//	in := wbc.NewQPInput(robot.NumVelocities())
//	in.Contacts = append(in.Contacts, leftFoot, rightFoot)
//	status, err := ctrl.Control(robot, in, out)
//	if status != wbc.StatusSuccess {
//		// hold the previous command
//	}
//
// # Thread Safety
//
// Inputs are read-only for the controller. Outputs are owned by the caller
// and are only written when a cycle succeeds.
package wbc
