// Command blinkfit evaluates, cross-checks and fits aggregated blinking
// models against dark/bright trajectories.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/blinkfit/internal/cliutil"
	"github.com/banshee-data/blinkfit/internal/config"
	"github.com/banshee-data/blinkfit/internal/db"
	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/likelihood"
	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/trajectory"
	"github.com/banshee-data/blinkfit/internal/version"
)

// errDisagree is returned by crosscheck when any trajectory's directions
// differ by more than the tolerance.
var errDisagree = errors.New("forward and backward evaluations disagree")

const usageText = `usage: blinkfit <command> [flags]

commands:
  evaluate    log10 likelihood of a trajectory or collection
  crosscheck  compare forward and backward evaluation per trajectory
  fit         maximize the mean log-likelihood over the log-rates
  runs        list, show or delete stored runs
  version     print build information

Run 'blinkfit <command> -h' for the flags of a command.
`

func main() {
	log.SetPrefix("blinkfit: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{})
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return fmt.Errorf("no command given")
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "evaluate":
		return runEvaluate(ctx, rest, stdout, stderr, fsys)
	case "crosscheck":
		return runCrossCheck(rest, stdout, stderr, fsys)
	case "fit":
		return runFit(ctx, rest, stdout, stderr, fsys)
	case "runs":
		return runRuns(rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "blinkfit %s\n", version.String())
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usageText)
		return nil
	default:
		fmt.Fprint(stderr, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// engineFlags are shared by every command that builds an engine.
type engineFlags struct {
	configPath     string
	trajectoryPath string
	collectionPath string
	params         string
	overrides      cliutil.Overrides
	verbose        bool
	record         bool
	storePath      string
}

func (f *engineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "engine configuration JSON (defaults apply when empty)")
	fs.StringVar(&f.trajectoryPath, "trajectory", "", "trajectory CSV file")
	fs.StringVar(&f.collectionPath, "collection", "", "collection file listing one trajectory path per line")
	fs.StringVar(&f.params, "params", "", "parameter vector: comma-separated log10 rates then N")
	fs.StringVar(&f.overrides.Model, "model", "", "model variant: "+strings.Join(likelihood.VariantNames(), ", "))
	fs.StringVar(&f.overrides.Direction, "direction", "", "recursion direction: forward or backward")
	fs.StringVar(&f.overrides.Strategy, "strategy", "", "matrix exponential: "+strings.Join(config.Strategies, ", "))
	fs.StringVar(&f.overrides.Policy, "policy", "", "collection failure policy: "+strings.Join(config.FailurePolicies, ", "))
	fs.IntVar(&f.overrides.Workers, "workers", 0, "trajectories evaluated in parallel")
	fs.BoolVar(&f.verbose, "verbose", false, "log per-trajectory diagnostics")
	fs.BoolVar(&f.record, "record", false, "record the run in the result store")
	fs.StringVar(&f.storePath, "store", "", "result store path (config store_path when empty)")
}

// setup is everything a command needs before evaluating.
type setup struct {
	cfg    *config.EngineConfig
	engine *likelihood.Engine
	x      []float64
	trajs  []*trajectory.Trajectory
	store  *db.DB
}

func (f *engineFlags) setup(fsys fsutil.FileSystem) (*setup, error) {
	monitoring.SetVerbose(f.verbose)

	cfg, err := cliutil.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	e, err := cliutil.NewEngine(cfg, f.overrides)
	if err != nil {
		return nil, err
	}
	x, err := cliutil.ParseFloats(f.params)
	if err != nil {
		return nil, fmt.Errorf("-params: %w", err)
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("-params is required (%s)", strings.Join(e.Variant().Schema(), ","))
	}
	if _, err := e.Params(x); err != nil {
		return nil, err
	}
	trajs, err := cliutil.LoadTrajectories(fsys, f.trajectoryPath, f.collectionPath)
	if err != nil {
		return nil, err
	}

	s := &setup{cfg: cfg, engine: e, x: x, trajs: trajs}
	if f.record {
		path := f.storePath
		if path == "" {
			path = cfg.GetStorePath()
		}
		if s.store, err = cliutil.OpenStore(path); err != nil {
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
	}
	return s, nil
}

func (s *setup) close() {
	if s.store != nil {
		s.store.Close()
	}
}

// record stores a finished run when a store is open.
func (s *setup) record(w io.Writer, run *db.Run, results []db.TrajectoryResult) error {
	if s.store == nil {
		return nil
	}
	id, err := s.store.RecordRun(run, results)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	fmt.Fprintf(w, "recorded run %s\n", id)
	return nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printOutcomes(w io.Writer, outcomes []likelihood.Outcome) {
	for _, o := range outcomes {
		switch {
		case o.Name == "":
			// not evaluated
		case o.Err != nil:
			fmt.Fprintf(w, "%-40s failed: %v\n", o.Name, o.Err)
		case o.Floored:
			fmt.Fprintf(w, "%-40s %14.6f (floored)\n", o.Name, o.LogLikelihood)
		default:
			fmt.Fprintf(w, "%-40s %14.6f\n", o.Name, o.LogLikelihood)
		}
	}
}

func printMean(w io.Writer, res likelihood.CollectionResult) {
	fmt.Fprintf(w, "mean log10 L %.6f over %d trajectories (%d failed, policy %s)\n",
		res.Mean, res.Included, res.Failed, res.Policy)
}

func runEvaluate(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) error {
	fs := newFlagSet("evaluate", stderr)
	var f engineFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := f.setup(fsys)
	if err != nil {
		return err
	}
	defer s.close()

	var run *db.Run
	if s.store != nil {
		run = s.store.NewRun(db.KindEvaluate, s.engine, s.x)
	}
	res, evalErr := s.engine.EvaluateCollection(ctx, s.x, s.trajs)
	printOutcomes(stdout, res.Outcomes)
	if evalErr == nil {
		printMean(stdout, res)
	}
	if s.store != nil {
		results := s.store.Finish(run, res, evalErr)
		if err := s.record(stdout, run, results); err != nil {
			return err
		}
	}
	return evalErr
}

func runCrossCheck(args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) error {
	fs := newFlagSet("crosscheck", stderr)
	var f engineFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := f.setup(fsys)
	if err != nil {
		return err
	}
	defer s.close()

	var run *db.Run
	if s.store != nil {
		run = s.store.NewRun(db.KindCrossCheck, s.engine, s.x)
	}
	var results []db.TrajectoryResult
	disagree := 0
	for i, tr := range s.trajs {
		r := db.TrajectoryResult{Index: i, Name: tr.Name}
		cc, err := s.engine.CrossCheck(s.x, tr)
		switch {
		case err != nil:
			disagree++
			r.Error = err.Error()
			fmt.Fprintf(stdout, "%-40s failed: %v\n", tr.Name, err)
		default:
			fwd := cc.Forward.LogLikelihood
			r.LogLikelihood, r.Floored = &fwd, cc.Forward.Floored
			mark := "ok"
			if !cc.Agree {
				disagree++
				mark = "DISAGREE"
				r.Error = fmt.Sprintf("backward %g differs by %g", cc.Backward.LogLikelihood, cc.Difference)
			}
			fmt.Fprintf(stdout, "%-40s forward %14.6f backward %14.6f diff %.3g %s\n",
				tr.Name, fwd, cc.Backward.LogLikelihood, cc.Difference, mark)
		}
		results = append(results, r)
	}
	if s.store != nil {
		run.FinishedAt = s.store.Clock().Now()
		run.Included, run.Failed = len(s.trajs)-disagree, disagree
		if err := s.record(stdout, run, results); err != nil {
			return err
		}
	}
	if disagree > 0 {
		return fmt.Errorf("%w on %d of %d trajectories", errDisagree, disagree, len(s.trajs))
	}
	return nil
}

func runFit(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) error {
	fs := newFlagSet("fit", stderr)
	var f engineFlags
	f.register(fs)
	maxEvals := fs.Int("max-evals", 200, "maximum objective evaluations")
	absolute := fs.Float64("tolerance", 1e-4, "convergence threshold on the mean log10 likelihood")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := f.setup(fsys)
	if err != nil {
		return err
	}
	defer s.close()

	var run *db.Run
	if s.store != nil {
		run = s.store.NewRun(db.KindFit, s.engine, s.x)
	}
	fit, err := s.engine.Fit(ctx, s.x, s.trajs, likelihood.FitSettings{MaxEvaluations: *maxEvals, Absolute: *absolute})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "start  %s mean %.6f\n", s.engine.Variant().Name, fit.StartMean)
	fmt.Fprintf(stdout, "fitted %s mean %.6f\n", fit.Params, fit.Mean)
	fmt.Fprintf(stdout, "%d evaluations, status %s\n", fit.Evaluations, fit.Status)

	if s.store != nil {
		best := fit.Params.Vector()
		res, evalErr := s.engine.EvaluateCollection(ctx, best, s.trajs)
		run.Params = best
		results := s.store.Finish(run, res, evalErr)
		if err := s.record(stdout, run, results); err != nil {
			return err
		}
	}
	return nil
}

func runRuns(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("runs", stderr)
	storePath := fs.String("store", config.DefaultStorePath, "result store path")
	limit := fs.Int("limit", 20, "number of runs to list")
	show := fs.String("show", "", "print the trajectory results of a run")
	del := fs.String("delete", "", "delete a run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := cliutil.OpenStore(*storePath)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	switch {
	case *del != "":
		if err := store.DeleteRun(*del); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted run %s\n", *del)
	case *show != "":
		r, err := store.Run(*show)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, r)
		results, err := store.TrajectoryResults(r.ID)
		if err != nil {
			return err
		}
		for _, tr := range results {
			switch {
			case tr.LogLikelihood == nil:
				fmt.Fprintf(stdout, "%4d %-40s failed: %s\n", tr.Index, tr.Name, tr.Error)
			case tr.Error != "":
				fmt.Fprintf(stdout, "%4d %-40s %14.6f %s\n", tr.Index, tr.Name, *tr.LogLikelihood, tr.Error)
			default:
				fmt.Fprintf(stdout, "%4d %-40s %14.6f\n", tr.Index, tr.Name, *tr.LogLikelihood)
			}
		}
	default:
		runs, err := store.Runs(*limit)
		if err != nil {
			return err
		}
		for i := range runs {
			fmt.Fprintln(stdout, &runs[i])
		}
	}
	return nil
}
