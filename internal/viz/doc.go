// Package viz renders closed-loop controller runs in the terminal.
//
// The package implements a Bubble Tea monitor for `wbqp live`:
//
//   - [Model]: steps the loop and draws the robot, contact forces and traces
//   - [Picker]: scenario and preset selection in front of the monitor
//   - [Canvas]: Braille pixel canvas with a metric viewport
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Restart the scenario
//	Tab   - Select regulator parameter
//	↑/↓   - Tune the selected parameter (±5%)
//	←/→   - Shift the CoM target along x
//	W/S   - Shift the CoM target along z
//	V     - Toggle side/front view
//	T     - Cycle color themes
//	?     - Show help overlay
//
// Static plots for stored runs use asciigraph ([PlotSeries]).
package viz
