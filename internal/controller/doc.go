// Package controller implements the per-cycle QP inverse-dynamics controller.
//
// Each call to [Controller.Control] runs:
//
//  1. input validation against the robot model
//  2. a topology check that rebuilds the program only when the contact and
//     task shapes changed
//  3. formulation of the dynamics, contact, basis and torque-limit
//     constraints and of the tracking and regularization costs
//  4. the solve, through the injected [qp.Solver]
//  5. decomposition into accelerations, torques and contact wrenches, with
//     residual, bound and centroidal wrench-balance checks
//
// The decision vector is [vd; beta], where beta holds the nonnegative
// coefficients of the friction-cone edges of every contact point.
//
// # Thread Safety
//
// A Controller owns its program and buffers and must be driven from a single
// goroutine. Independent controllers may run in parallel.
package controller
