package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/san-kum/wbqp/internal/analysis"
	"github.com/san-kum/wbqp/internal/automation"
	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/experiment"
	"github.com/san-kum/wbqp/internal/export"
	"github.com/san-kum/wbqp/internal/sim"
	"github.com/san-kum/wbqp/internal/storage"
	"github.com/san-kum/wbqp/internal/viz"
)

var (
	// analyze
	band float64
	// export-svg
	frame bool
	// sweep
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	// montecarlo
	trials    int
	threshold float64
)

func addBatchCommands(root *cobra.Command) {
	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "CoM tracking response and oscillation analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&band, "band", 0.005, "settling band in meters")

	svgCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export run series, or the final robot pose, as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	svgCmd.Flags().StringSliceVar(&series, "series", []string{"com_x", "com_z"}, "columns to draw")
	svgCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <run_id>.svg)")
	svgCmd.Flags().BoolVar(&frame, "frame", false, "replay the run and draw the final pose")

	scriptCmd := &cobra.Command{
		Use:   "script [file]",
		Short: "run a yaml script of scenario steps",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [scenario]",
		Short: "sweep one tunable parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "run.kp", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 10, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 80, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 8, "number of values")

	mcCmd := &cobra.Command{
		Use:   "montecarlo [scenario]",
		Short: "count stable trials under random initial CoM kicks",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addRunFlags(mcCmd)
	mcCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	mcCmd.Flags().IntVar(&parallel, "parallel", 0, "max concurrent trials (0 = unlimited)")
	mcCmd.Flags().Float64Var(&threshold, "threshold", 1, "minimum stability metric of a stable trial")

	root.AddCommand(analyzeCmd, svgCmd, scriptCmd, sweepCmd, mcCmd)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	cfg, err := st.LoadConfig(runID)
	if err != nil {
		return err
	}
	records, err := st.LoadCycles(runID)
	if err != nil {
		return err
	}
	if len(records) < 2 {
		return errors.New("not enough cycles to analyze")
	}

	// The target only depends on the configuration, so an unrun experiment
	// reproduces it.
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	errs := [3][]float64{}
	for _, r := range records {
		target := exp.Target(r.Time)
		errs[0] = append(errs[0], r.COM[0]-target.X)
		errs[1] = append(errs[1], r.COM[1]-target.Y)
		errs[2] = append(errs[2], r.COM[2]-target.Z)
	}

	fmt.Printf("run: %s (%s, %d cycles)\n\n", runID, cfg.Run.Scenario, len(records))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AXIS\tSETTLING\tOVERSHOOT\tPEAK(mm)\tSTEADY(mm)\tFREQ(Hz)\tAMP(mm)")
	for k, axis := range []string{"x", "y", "z"} {
		resp := analysis.StepResponse(errs[k], cfg.Run.Dt, band)
		freq, amp := analysis.DominantFrequency(errs[k], cfg.Run.Dt)
		settling := "never"
		if resp.SettlingTime >= 0 {
			settling = fmt.Sprintf("%.3fs", resp.SettlingTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%.2f\t%.2f\t%.2f\t%.3f\n",
			axis, settling, 100*resp.Overshoot, 1000*resp.PeakError, 1000*resp.SteadyState, freq, 1000*amp)
	}
	return w.Flush()
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	path := output
	if path == "" {
		path = runID + ".svg"
	}

	st := storage.New(dataDir)
	var svg string
	if frame {
		cfg, err := st.LoadConfig(runID)
		if err != nil {
			return err
		}
		svg, err = finalFrameSVG(cmd, cfg)
		if err != nil {
			return err
		}
	} else {
		records, err := st.LoadCycles(runID)
		if err != nil {
			return err
		}
		times := make([]float64, len(records))
		for i, r := range records {
			times[i] = r.Time
		}
		lines := make([]export.Series, 0, len(series))
		for i, name := range series {
			data, err := storage.Series(records, name)
			if err != nil {
				return err
			}
			lines = append(lines, export.Series{Name: name, Color: export.Palette[i%len(export.Palette)], Values: data})
		}
		svg, err = export.SeriesToSVG(times, lines, 800, 300)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", runID, path)
	return nil
}

// finalFrameSVG reruns cfg, which is deterministic for a fixed seed, and
// draws the last pose with its contact forces.
func finalFrameSVG(cmd *cobra.Command, cfg *config.Config) (string, error) {
	exp, err := experiment.New(cfg)
	if err != nil {
		return "", err
	}
	session, err := exp.GetSimulator().Start(cfg.SimConfig())
	if err != nil {
		return "", err
	}
	for !session.Done() {
		if err := cmd.Context().Err(); err != nil {
			return "", err
		}
		if _, err := session.Next(); err != nil {
			var se sim.SimError
			if !errors.As(err, &se) {
				return "", err
			}
			break
		}
	}

	scene, err := viz.Capture(exp.Robot(), session.Output(), exp.Target(session.Time()))
	if err != nil {
		return "", err
	}
	c := viz.NewCanvas(60, 20)
	viz.Render(c, scene, viz.SideView)
	return export.CanvasToSVG(c, 4, string(viz.CurrentTheme.Robot)), nil
}

func runScript(cmd *cobra.Command, args []string) error {
	script, err := automation.LoadScript(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("script %s: %d steps\n", script.Name, len(script.Steps))
	results, err := automation.RunScript(ctx, script, config.DefaultConfig(), st)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSCENARIO\tPRESET\tCYCLES\tFAILED\tSUCCESS\tRUN")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.3f\t%s\n",
			i+1, r.Step.Scenario, r.Step.Preset, len(r.Result.Steps), r.Result.Failures,
			r.Result.Metrics["success_rate"], r.RunID)
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	sweep := automation.Sweep{Param: sweepParam, Min: sweepMin, Max: sweepMax, NumSteps: sweepSteps}
	results, err := automation.RunSweep(ctx, sweep, base)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFAILED\tSTABILITY\tEFFORT\tRESIDUAL\tSOLVE(ms)\n", sweepParam)
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%d\t%.3f\t%.2f\t%.2e\t%.4f\n",
			r.Value, r.Failures, r.Metrics["stability"], r.Metrics["control_effort"],
			r.Metrics["wrench_residual"], r.Metrics["solve_time_ms"])
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	kick := base.Run.Perturbation
	if kick == 0 {
		kick = 0.05
	}

	ctx, cancel := signalContext()
	defer cancel()

	mc := automation.MonteCarloConfig{
		Perturbation: kick,
		NumTrials:    trials,
		Seed:         base.Run.Seed,
		Parallel:     parallel,
		Threshold:    threshold,
	}
	results, err := automation.RunMonteCarlo(ctx, mc, base)
	if err != nil {
		return err
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("%s: %d trials, kick %.3f m/s\n", base.Run.Scenario, len(results), kick)
	fmt.Printf("stable: %d  unstable: %d  (%.1f%%)\n", stable, unstable, 100*float64(stable)/float64(len(results)))
	return nil
}
