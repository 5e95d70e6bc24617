package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/experiment"
	"github.com/san-kum/wbqp/internal/metrics"
	"github.com/san-kum/wbqp/internal/optim"
	"github.com/san-kum/wbqp/internal/sim"
	"github.com/san-kum/wbqp/internal/storage"
	"github.com/san-kum/wbqp/internal/viz"
	"github.com/san-kum/wbqp/internal/wbc"
)

var (
	dataDir  string
	logLevel string

	configFile    string
	preset        string
	dt            float64
	cycles        int
	seed          int64
	integrator    string
	regulator     string
	solver        string
	kp            float64
	ki            float64
	kd            float64
	perturbation  float64
	stopOnFailure bool

	// plot
	series []string
	// export-json
	output string
	// bench
	runs     int
	parallel int
	// tune
	grid     []string
	metric   string
	maximize bool
	save     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wbqp",
		Short: "whole-body QP controller lab",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(viz.NewPicker(config.DefaultConfig()))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".wbqp", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "run the closed loop and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	addRunFlags(runCmd)

	solveCmd := &cobra.Command{
		Use:   "solve [scenario]",
		Short: "solve one control cycle and dump its input and output",
		Args:  cobra.MaximumNArgs(1),
		RunE:  solveOnce,
	}
	addRunFlags(solveCmd)

	liveCmd := &cobra.Command{
		Use:   "live [scenario]",
		Short: "run the closed loop with a live monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [scenario]",
		Short: "benchmark the control cycle over an ensemble of seeds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchScenario,
	}
	addRunFlags(benchCmd)
	benchCmd.Flags().IntVar(&runs, "runs", 4, "number of ensemble members per scenario")
	benchCmd.Flags().IntVar(&parallel, "parallel", 0, "max concurrent members (0 = unlimited)")

	tuneCmd := &cobra.Command{
		Use:   "tune [scenario]",
		Short: "grid search weights and gains",
		Long: "grid search weights and gains\n\nparameters: " + strings.Join(optim.Tunable(), ", ") +
			"\nmetrics: " + strings.Join(metrics.Names(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: tuneScenario,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter grid, e.g. weights.com=10,100,1000 (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "wrench_residual", "metric to optimize")
	tuneCmd.Flags().BoolVar(&maximize, "maximize", false, "maximize the metric instead of minimizing")
	tuneCmd.Flags().BoolVar(&save, "save", false, "run and store the best configuration")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&series, "series", []string{"com_x", "com_z", "solve_ms", "wrench_residual"}, "columns to plot")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export metadata and cycles as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [scenario]",
		Short: "list scenarios and their presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, solveCmd, liveCmd, benchCmd, tuneCmd, listCmd, plotCmd, exportCmd, exportJSONCmd, presetsCmd)
	addBatchCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", d.Run.Dt, "control period")
	cmd.Flags().IntVar(&cycles, "cycles", d.Run.Cycles, "number of control cycles")
	cmd.Flags().Int64Var(&seed, "seed", d.Run.Seed, "random seed")
	cmd.Flags().StringVar(&integrator, "integrator", d.Run.Integrator, "integrator")
	cmd.Flags().StringVar(&regulator, "regulator", d.Run.Regulator, "com regulator ("+strings.Join(experiment.ListRegulators(), ", ")+")")
	cmd.Flags().StringVar(&solver, "solver", d.Controller.Solver, "qp backend")
	cmd.Flags().Float64Var(&kp, "kp", d.Run.Kp, "regulator kp")
	cmd.Flags().Float64Var(&ki, "ki", d.Run.Ki, "regulator ki")
	cmd.Flags().Float64Var(&kd, "kd", d.Run.Kd, "regulator kd")
	cmd.Flags().Float64Var(&perturbation, "perturbation", d.Run.Perturbation, "std dev of the initial CoM velocity kick")
	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", d.Run.StopOnFailure, "stop at the first failed cycle")
}

// buildConfig layers defaults, preset, config file and explicitly set flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		cfg.Run.Scenario = args[0]
	}

	if preset != "" {
		p := config.GetPreset(cfg.Run.Scenario, preset)
		if p == nil {
			return nil, errors.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Run.Scenario))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		cfg = loaded
		if len(args) > 0 {
			cfg.Run.Scenario = args[0]
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Run.Dt = dt
	}
	if flags.Changed("cycles") {
		cfg.Run.Cycles = cycles
	}
	if flags.Changed("seed") {
		cfg.Run.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Run.Integrator = integrator
	}
	if flags.Changed("regulator") {
		cfg.Run.Regulator = regulator
	}
	if flags.Changed("solver") {
		cfg.Controller.Solver = solver
	}
	if flags.Changed("kp") {
		cfg.Run.Kp = kp
	}
	if flags.Changed("ki") {
		cfg.Run.Ki = ki
	}
	if flags.Changed("kd") {
		cfg.Run.Kd = kd
	}
	if flags.Changed("perturbation") {
		cfg.Run.Perturbation = perturbation
	}
	if flags.Changed("stop-on-failure") {
		cfg.Run.StopOnFailure = stopOnFailure
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s (%d cycles, dt %gs)...\n", cfg.Run.Scenario, cfg.Run.Cycles, cfg.Run.Dt)
	start := time.Now()

	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(cfg, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("cycles: %d (%d failed)\n", len(result.Steps), result.Failures)
	printMetrics(os.Stdout, result.Metrics)
	return nil
}

func printMetrics(w io.Writer, m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nmetrics:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %.6f\n", name, m[name])
	}
}

func solveOnce(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}

	robot := exp.Robot()
	in, err := exp.Planner().Plan(robot, 0)
	if err != nil {
		return err
	}
	if err := wbc.WriteInput(os.Stdout, in); err != nil {
		return err
	}

	var out wbc.QPOutput
	status, err := exp.Controller().Control(robot, in, &out)
	if err != nil {
		fmt.Printf("status: %s\n", status)
		return err
	}
	if err := wbc.WriteOutput(os.Stdout, &out); err != nil {
		return err
	}
	sol := exp.Controller().LastSolution()
	fmt.Printf("status: %s (%d iterations, total cost %.6g)\n", status, sol.Iterations, out.TotalCost())
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && preset == "" && configFile == "" {
		return runTUI(viz.NewPicker(config.DefaultConfig()))
	}
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	m, err := viz.NewModel(cfg)
	if err != nil {
		return err
	}
	return runTUI(m)
}

// runTUI runs a Bubble Tea program with logging silenced so that it does not
// tear the screen.
func runTUI(m tea.Model) error {
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	_, err := tea.NewProgram(m).Run()
	return err
}

func benchScenario(cmd *cobra.Command, args []string) error {
	base, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	names := experiment.ListScenarios()
	if len(args) > 0 {
		names = []string{base.Run.Scenario}
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("benchmarking %d members x %d cycles\n\n", runs, base.Run.Cycles)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tCYCLES\tFAILED\tWALL\tCYCLES/SEC\tSOLVE(ms)\tRESIDUAL")

	for _, name := range names {
		cfg := base.Clone()
		cfg.Run.Scenario = name

		ens := sim.NewEnsemble(experiment.Factory(cfg), runs, cfg.Run.Seed)
		ens.SetLimit(parallel)

		start := time.Now()
		results, err := ens.Run(ctx, cfg.SimConfig())
		if err != nil {
			return errors.Wrapf(err, "scenario %s", name)
		}
		elapsed := time.Since(start)

		total, failed := 0, 0
		var solveMs, residual float64
		for _, r := range results {
			total += len(r.Steps)
			failed += r.Failures
			solveMs += r.Metrics["solve_time_ms"]
			residual = max(residual, r.Metrics["wrench_residual"])
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%.0f\t%.4f\t%.2e\n",
			name, total, failed, elapsed.Round(time.Millisecond),
			float64(total)/elapsed.Seconds(), solveMs/float64(len(results)), residual)
	}
	return w.Flush()
}

func tuneScenario(cmd *cobra.Command, args []string) error {
	base, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return errors.New("at least one --grid is required")
	}

	names := make([]string, 0, len(grid))
	ranges := make([][]float64, 0, len(grid))
	for _, g := range grid {
		name, values, err := parseGrid(g)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	ctx, cancel := signalContext()
	defer cancel()

	gs := optim.NewGridSearch(names, ranges)
	gs.Maximize = maximize
	best, value, err := gs.Search(ctx, optim.ConfigBuilder(base), metric)
	if err != nil {
		return err
	}

	fmt.Printf("best %s: %.6g\n", metric, value)
	for _, name := range names {
		fmt.Printf("  %s = %g\n", name, best[name])
	}
	if !save {
		return nil
	}

	cfg, err := optim.Apply(base, best)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, result)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

// parseGrid parses "name=v1,v2,...".
func parseGrid(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, errors.Errorf("bad grid %q, want name=v1,v2", s)
	}
	var values []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, errors.Wrapf(err, "grid %s", name)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tCYCLES\tDT\tREGULATOR\tSOLVER\tFAILED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4fs\t%s\t%s\t%d\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Cycles,
			run.Dt,
			run.Regulator,
			run.Solver,
			run.Failures,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	records, err := st.LoadCycles(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("cycles: %d (%.3fs)\n\n", len(records), meta.Duration())

	for _, name := range series {
		data, err := storage.Series(records, name)
		if err != nil {
			return err
		}
		fmt.Println(viz.PlotSeries(name+" vs cycle", data))
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if output == "" {
		return st.ExportJSONStdout(args[0])
	}
	if err := st.ExportJSON(args[0], output); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", args[0], output)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	names := experiment.ListScenarios()
	if len(args) > 0 {
		sc, err := experiment.GetScenario(args[0])
		if err != nil {
			return err
		}
		names = []string{sc.Name}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tPRESETS\tDESCRIPTION")
	for _, name := range names {
		sc, err := experiment.GetScenario(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(config.ListPresets(name), ", "), sc.Description)
	}
	return w.Flush()
}
