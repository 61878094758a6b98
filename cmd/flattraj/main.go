package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/flattraj/internal/analysis"
	"github.com/san-kum/flattraj/internal/automation"
	"github.com/san-kum/flattraj/internal/config"
	"github.com/san-kum/flattraj/internal/experiment"
	"github.com/san-kum/flattraj/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	verbose    bool
	configFile string
	preset     string
	output     string

	// problem overrides
	mode       string
	basis      string
	size       int
	tf         float64
	solver     string
	dt         float64
	integrator string
	controller string
	runs       int
	seed       int64
	noSave     bool

	sizes  []int
	inputs bool
	pngOut string
	xAxis  int
	yAxis  int

	paramName string
	paramMin  float64
	paramMax  float64
	numSteps  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "flattraj",
		Short:        "trajectory generation for differentially flat systems",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".flattraj", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	solveCmd := &cobra.Command{
		Use:   "solve [system]",
		Short: "plan a trajectory and verify it in simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  solveProblem,
	}
	problemFlags(solveCmd)
	solveCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	sweepCmd := &cobra.Command{
		Use:   "sweep [system]",
		Short: "solve a problem for several basis sizes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepSizes,
	}
	problemFlags(sweepCmd)
	sweepCmd.Flags().IntSliceVar(&sizes, "sizes", []int{4, 6, 8, 10, 12}, "basis sizes to try")

	paramSweepCmd := &cobra.Command{
		Use:   "param-sweep [system]",
		Short: "re-plan a problem across a range of one physical parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  paramSweep,
	}
	problemFlags(paramSweepCmd)
	paramSweepCmd.Flags().StringVar(&paramName, "param", "", "parameter to vary")
	paramSweepCmd.Flags().Float64Var(&paramMin, "from", 0, "first value")
	paramSweepCmd.Flags().Float64Var(&paramMax, "to", 1, "last value")
	paramSweepCmd.Flags().IntVar(&numSteps, "steps", 5, "number of values")
	_ = paramSweepCmd.MarkFlagRequired("param")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run and store every problem of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	newCmd := &cobra.Command{
		Use:   "new [system]",
		Short: "write a problem file from a preset",
		Args:  cobra.ExactArgs(1),
		RunE:  newProblem,
	}
	newCmd.Flags().StringVar(&preset, "preset", "", "preset to start from")
	newCmd.Flags().StringVarP(&output, "output", "o", "problem.yaml", "problem file to write")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run-id]",
		Short: "plot a run against its planned trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().BoolVar(&inputs, "inputs", false, "plot inputs instead of states")
	plotCmd.Flags().StringVar(&pngOut, "png", "", "write a PNG to this file instead of the terminal")

	phaseCmd := &cobra.Command{
		Use:   "phase [run-id]",
		Short: "draw two state components against each other",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for y-axis")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run-id]",
		Short: "write the samples of a run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run-id]",
		Short: "write a run with its samples as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list problem presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, system := range config.Systems() {
				fmt.Println(titleStyle.Render(system))
				for _, name := range config.ListPresets(system) {
					p := config.GetPreset(system, name)
					fmt.Printf("  %-22s %s %s, %s basis\n", name, p.Mode, formatSpan(p.T0, p.Tf), p.Basis.Family)
				}
			}
			return nil
		},
	}

	systemsCmd := &cobra.Command{
		Use:   "systems",
		Short: "list systems and integrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := experiment.NewRegistry()
			for _, name := range registry.ListSystems() {
				fmt.Printf("%s  %s\n", labelStyle.Render(fmt.Sprintf("%-8s", name)), registry.Describe(name))
			}
			fmt.Printf("\nintegrators: %s\n", strings.Join(registry.ListIntegrators(), ", "))
			return nil
		},
	}

	rootCmd.AddCommand(solveCmd, sweepCmd, paramSweepCmd, scenarioCmd, newCmd, listCmd, plotCmd, phaseCmd, exportCSVCmd, exportJSONCmd, presetsCmd, systemsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func problemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "problem file (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset problem")
	cmd.Flags().StringVar(&mode, "mode", "p2p", "p2p or ocp")
	cmd.Flags().StringVar(&basis, "basis", "poly", "basis family: poly, bezier or bspline")
	cmd.Flags().IntVar(&size, "size", config.DefaultSize, "basis size")
	cmd.Flags().Float64Var(&tf, "tf", 1, "final time")
	cmd.Flags().StringVar(&solver, "solver", "svd", "linear solver: svd or qr")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "simulation timestep")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	cmd.Flags().StringVar(&controller, "controller", "feedforward", "feedforward, tracking or none")
	cmd.Flags().IntVar(&runs, "runs", 0, "ensemble size")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "first ensemble seed")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadProblem reads --config or a preset and applies the flags that were
// set explicitly.
func loadProblem(cmd *cobra.Command, args []string) (*config.Problem, error) {
	var p *config.Problem
	switch {
	case configFile != "":
		var err error
		if p, err = config.Load(configFile); err != nil {
			return nil, err
		}
		fmt.Printf("loaded problem from %s\n", configFile)
	case len(args) == 1:
		if preset == "" {
			return nil, fmt.Errorf("%s needs --preset or --config (presets: %s)",
				args[0], strings.Join(config.ListPresets(args[0]), ", "))
		}
		if p = config.GetPreset(args[0], preset); p == nil {
			return nil, fmt.Errorf("unknown preset %s for %s (available: %s)",
				preset, args[0], strings.Join(config.ListPresets(args[0]), ", "))
		}
		fmt.Printf("using preset %s/%s\n", args[0], preset)
	default:
		return nil, fmt.Errorf("give a system with --preset, or --config")
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		p.Mode = mode
	}
	if flags.Changed("basis") {
		p.Basis.Family = basis
	}
	if flags.Changed("size") {
		p.Basis.Size = size
	}
	if flags.Changed("tf") {
		p.Tf = tf
	}
	if flags.Changed("solver") {
		p.Solver = solver
	}
	if flags.Changed("dt") {
		p.Simulation.Dt = dt
	}
	if flags.Changed("integrator") {
		p.Simulation.Integrator = integrator
	}
	if flags.Changed("controller") {
		p.Simulation.Controller = controller
	}
	if flags.Changed("runs") {
		p.Simulation.Runs = runs
	}
	if flags.Changed("seed") {
		p.Simulation.Seed = seed
	}
	return p, p.Validate()
}

func solveProblem(cmd *cobra.Command, args []string) error {
	p, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp, err := experiment.New(p, experiment.NewRegistry(), newLogger())
	if err != nil {
		return err
	}

	fmt.Printf("solving %s (%s, %s basis of size %d)...\n", p.System, p.Mode, p.Basis.Family, exp.Basis().Size())
	out, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(summary(out))

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(out)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func sweepSizes(cmd *cobra.Command, args []string) error {
	p, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("sweeping %s basis sizes %v\n\n", p.Basis.Family, sizes)
	best, points, err := experiment.Sweep(ctx, p, experiment.NewRegistry(), newLogger(), sizes)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIZE\tOBJECTIVE\tTRACKING_RMS\tSTATUS")
	for _, pt := range points {
		status := "ok"
		if pt.Err != nil {
			status = warnStyle.Render(pt.Err.Error())
			fmt.Fprintf(w, "%d\t-\t-\t%s\n", pt.Size, status)
			continue
		}
		if pt.Size == best {
			status = okStyle.Render("best")
		}
		fmt.Fprintf(w, "%d\t%.6g\t%.3e\t%s\n", pt.Size, pt.Objective, pt.TrackingRMS, status)
	}
	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest size: %d\n", best)
	return nil
}

func paramSweep(cmd *cobra.Command, args []string) error {
	p, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sweep := &automation.ParameterSweep{
		Problem:   p,
		ParamName: paramName,
		ParamMin:  paramMin,
		ParamMax:  paramMax,
		NumSteps:  numSteps,
	}
	results, err := automation.RunSweep(ctx, sweep, experiment.NewRegistry(), newLogger())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCOST\tEFFORT\tTRACKING_RMS\tFINAL_ERROR\n", strings.ToUpper(paramName))
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%.4g\t%s\n", r.ParamValue, warnStyle.Render(r.Err.Error()))
			continue
		}
		fmt.Fprintf(w, "%.4g\t%.6g\t%.6g\t%.3e\t%.3e\n", r.ParamValue, r.Cost, r.Effort, r.TrackingRMS, r.FinalError)
	}
	return w.Flush()
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running scenario %s (%d steps)\n", scenario.Name, len(scenario.Steps))
	outs, runErr := automation.RunScenario(ctx, scenario, experiment.NewRegistry(), newLogger())

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	for i, out := range outs {
		runID, err := st.Save(out)
		if err != nil {
			return err
		}
		fmt.Printf("step %d: %s tracking_rms=%.3e run id: %s\n", i+1, out.Problem.Name, out.Result.Metrics["tracking_rms"], runID)
	}
	return runErr
}

func newProblem(cmd *cobra.Command, args []string) error {
	p := config.DefaultProblem()
	p.System = args[0]
	if preset != "" {
		if p = config.GetPreset(args[0], preset); p == nil {
			return fmt.Errorf("unknown preset %s for %s", preset, args[0])
		}
	}
	if err := config.Save(output, p); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", output)
	return nil
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
	fmt.Fprintln(w, "ID\tNAME\tSYSTEM\tTIME\tMODE\tBASIS\tCOST\tTRACKING_RMS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s/%d\t%.4g\t%.3e\n",
			run.ID,
			run.Name,
			run.System,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Mode,
			run.Basis,
			run.BasisSize,
			run.Cost,
			run.Metrics["tracking_rms"],
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

	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}

	sim, planned, prefix := samples.States, samples.PlannedStates, "x"
	if inputs {
		sim, planned, prefix = samples.Controls, samples.PlannedInputs, "u"
	}
	if len(sim) == 0 || len(sim[0]) == 0 {
		return fmt.Errorf("no data to plot")
	}

	if pngOut != "" {
		if err := savePNG(pngOut, meta, samples.Times, sim, planned, prefix); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngOut)
		return nil
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("system: %s\n", meta.System)
	fmt.Printf("samples: %d\n\n", len(sim))

	numVars := len(sim[0])
	maxPlots := 6
	if numVars > maxPlots {
		numVars = maxPlots
	}

	for varIdx := 0; varIdx < numVars; varIdx++ {
		caption := fmt.Sprintf("%s%d vs time", prefix, varIdx)
		series := [][]float64{column(sim, varIdx)}
		if len(planned) > 0 {
			series = append(series, column(planned, varIdx))
			caption += " (simulated, planned)"
		}

		graph := asciigraph.PlotMany(series,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func column(rows [][]float64, j int) []float64 {
	data := make([]float64, len(rows))
	for i := range rows {
		if j < len(rows[i]) {
			data[i] = rows[i][j]
		}
	}
	return data
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	samples, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}

	portrait, err := analysis.NewPortrait(samples.States, samples.PlannedStates, xAxis, yAxis)
	if err != nil {
		return err
	}

	minX, maxX, minY, maxY := portrait.Bounds()
	fmt.Printf("phase space plot: %s\n", meta.ID)
	fmt.Printf("x-axis: x%d [%.3g, %.3g], y-axis: x%d [%.3g, %.3g]\n\n", xAxis, minX, maxX, yAxis, minY, maxY)
	fmt.Print(portrait.ASCII(70, 20))
	if len(portrait.Planned) > 0 {
		fmt.Printf("\nlegend: • simulated, · planned\n")
		fmt.Printf("max deviation: %.3e\n", portrait.MaxDeviation())
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).CopySamples(args[0], os.Stdout)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(args[0], os.Stdout)
}

func summary(out *experiment.Outcome) string {
	p := out.Problem
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s %s", p.System, p.Name)),
		field("span", formatSpan(p.T0, p.Tf)),
		field("basis", fmt.Sprintf("%s, size %d", p.Basis.Family, out.Trajectory.Basis().Size())),
		field("solve time", out.SolveTime.String()),
	}
	if p.Mode == "ocp" {
		lines = append(lines, field("cost", fmt.Sprintf("%.6g", out.Trajectory.Cost())))
	}
	lines = append(lines, field("steps", fmt.Sprintf("%d (%d rejected)", out.Result.StepsTaken, out.Result.Rejected)))
	if out.Planned != nil && out.Planned.Extrapolated {
		lines = append(lines, warnStyle.Render("simulation ran past the planned interval"))
	}

	lines = append(lines, "", labelStyle.Render("metrics"))
	lines = append(lines, metricLines(out.Result.Metrics)...)
	if len(out.EnsembleMetrics) > 0 {
		lines = append(lines, "", labelStyle.Render(fmt.Sprintf("ensemble mean over %d runs", len(out.Ensemble))))
		lines = append(lines, metricLines(out.EnsembleMetrics)...)
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func metricLines(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = field(name, fmt.Sprintf("%.6g", m[name]))
	}
	return lines
}

func formatSpan(t0, tf float64) string {
	return fmt.Sprintf("[%g, %g]", t0, tf)
}
