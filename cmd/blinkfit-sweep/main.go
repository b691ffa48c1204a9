// Command blinkfit-sweep profiles the mean collection log-likelihood along
// one model parameter and writes the profile as CSV, PNG and HTML.
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
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/blinkfit/internal/cliutil"
	"github.com/banshee-data/blinkfit/internal/db"
	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/likelihood"
	"github.com/banshee-data/blinkfit/internal/monitoring"
	"github.com/banshee-data/blinkfit/internal/sweep"
	"github.com/banshee-data/blinkfit/internal/trajectory"
)

func main() {
	log.SetPrefix("blinkfit-sweep: ")

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
	fs := flag.NewFlagSet("blinkfit-sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "engine configuration JSON (defaults apply when empty)")
	trajectoryPath := fs.String("trajectory", "", "trajectory CSV file")
	collectionPath := fs.String("collection", "", "collection file listing one trajectory path per line")
	params := fs.String("params", "", "base parameter vector: comma-separated log10 rates then N")
	param := fs.String("param", "", "parameter to sweep, e.g. log_kd")
	valueRange := fs.String("range", "", "values as start:end:step or a comma-separated list")
	output := fs.String("output", "", "output prefix (defaults to sweep-<param>-<timestamp>)")
	verbose := fs.Bool("verbose", false, "log every sweep point")
	record := fs.Bool("record", false, "record the best point in the result store")
	storePath := fs.String("store", "", "result store path (config store_path when empty)")
	var o cliutil.Overrides
	fs.StringVar(&o.Model, "model", "", "model variant: "+strings.Join(likelihood.VariantNames(), ", "))
	fs.StringVar(&o.Strategy, "strategy", "", "matrix exponential strategy")
	fs.StringVar(&o.Policy, "policy", "", "collection failure policy")
	fs.IntVar(&o.Workers, "workers", 0, "trajectories evaluated in parallel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	monitoring.SetVerbose(*verbose)

	if *param == "" {
		return fmt.Errorf("-param is required")
	}
	values, err := sweep.ParseRange(*valueRange)
	if err != nil {
		return err
	}
	cfg, err := cliutil.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	e, err := cliutil.NewEngine(cfg, o)
	if err != nil {
		return err
	}
	base, err := cliutil.ParseFloats(*params)
	if err != nil {
		return fmt.Errorf("-params: %w", err)
	}
	if len(base) == 0 {
		return fmt.Errorf("-params is required (%s)", strings.Join(e.Variant().Schema(), ","))
	}
	trajs, err := cliutil.LoadTrajectories(fsys, *trajectoryPath, *collectionPath)
	if err != nil {
		return err
	}

	log.Printf("sweeping %s over %d values on %d trajectories", *param, len(values), len(trajs))
	prof, err := sweep.Run(ctx, e, base, *param, values, trajs)
	if err != nil && prof == nil {
		return err
	}
	// A cancelled sweep still writes the points it finished.
	if err != nil {
		log.Printf("sweep stopped after %d of %d points: %v", len(prof.Points), len(values), err)
	}
	if len(prof.Points) == 0 {
		return err
	}

	prefix := *output
	if prefix == "" {
		prefix = fmt.Sprintf("sweep-%s-%s", *param, time.Now().Format("20060102-150405"))
	}
	paths, saveErr := sweep.Save(fsys, prefix, prof)
	if saveErr != nil {
		return fmt.Errorf("failed to write outputs: %w", saveErr)
	}
	for _, p := range paths {
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}

	best, ok := prof.Best()
	if !ok {
		fmt.Fprintln(stdout, "no point evaluated successfully")
		return err
	}
	fmt.Fprintf(stdout, "best %s=%g mean log10 L %.6f\n", *param, best.Value, best.Mean)

	if *record && err == nil {
		path := *storePath
		if path == "" {
			path = cfg.GetStorePath()
		}
		if err := recordBest(ctx, stdout, path, e, prof, best, trajs); err != nil {
			return err
		}
	}
	return err
}

// recordBest re-evaluates the best point and stores it as a sweep run.
func recordBest(ctx context.Context, w io.Writer, path string, e *likelihood.Engine, prof *sweep.Profile, best sweep.Point, trajs []*trajectory.Trajectory) error {
	store, err := cliutil.OpenStore(path)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	x := append([]float64(nil), prof.Base...)
	x[slices.Index(e.Variant().Schema(), prof.Param)] = best.Value

	r := store.NewRun(db.KindSweep, e, x)
	res, evalErr := e.EvaluateCollection(ctx, x, trajs)
	id, err := store.RecordRun(r, store.Finish(r, res, evalErr))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	fmt.Fprintf(w, "recorded run %s\n", id)
	return nil
}
