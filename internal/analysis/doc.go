// Package analysis characterizes closed-loop CoM trajectories.
//
//   - [Spectrum], [DominantFrequency]: oscillation content of a signal
//   - [StepResponse]: settling time, overshoot and steady-state error of a
//     tracking error signal
//
// # Usage
//
//	recs, _ := store.LoadCycles(runID)
//	errX, _ := storage.Series(recs, "com_x")
//	resp := analysis.StepResponse(errX, dt, 0.005)
package analysis
