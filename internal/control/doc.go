// Package control provides CoM regulators that turn the measured CoM state
// into the desired CoM acceleration handed to the whole-body controller.
//
// Regulators implement [Regulator]:
//
//   - [PID]: per-axis proportional-integral-derivative on the CoM position
//   - [StateFeedback]: static gain on the stacked [position error; velocity]
//   - [Manual]: a commanded acceleration set from outside the loop
//   - [None]: zero acceleration
//
// # Usage
//
//	reg := control.NewPID(40, 0, 12, r3.Vec{Z: 0.9})
//	acc := reg.Compute(robot.COM(), comVel, t)
//	in.DesiredCOMAcc = acc
//
// Regulators implementing [Tunable] support live adjustment.
package control
